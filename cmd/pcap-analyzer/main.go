package main

import (
	"NetFlowRollup/internal/engine/aggregator"
	"NetFlowRollup/internal/engine/classifier"
	"NetFlowRollup/internal/model"
	"NetFlowRollup/pkg/pcap"
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/xerrors"
)

// pcap-analyzer aggregates a capture file the way the collector would and
// prints the hourly rows instead of writing them.
func main() {
	inside := pflag.StringSlice("inside", []string{"140.125.0.0/16"}, "inside IPv4 prefixes")
	shards := pflag.Int("shards", 4, "number of aggregation shards")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pcap-analyzer [flags] <path_to_pcap_file>\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(1)
	}

	prefixes, err := parsePrefixes(*inside)
	if err != nil {
		log.Fatalf("Invalid --inside: %v", err)
	}
	if err := analyze(context.Background(), pflag.Arg(0), prefixes, *shards, os.Stdout); err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
}

func parsePrefixes(values []string) (classifier.PrefixSet, error) {
	set := make(classifier.PrefixSet, 0, len(values))
	for _, v := range values {
		p, err := netip.ParsePrefix(v)
		if err != nil {
			return nil, err
		}
		set = append(set, p.Masked())
	}
	return set, nil
}

func analyze(ctx context.Context, path string, inside classifier.PrefixSet, shards int, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, err := pcap.NewReader(f)
	if err != nil {
		return err
	}
	log.Printf("Reading packets from '%s'...", path)
	records, err := reader.ReadRecords(ctx, nil)
	if err != nil {
		log.Warnf("Capture ended early: %v", err)
	}

	caches, err := aggregator.AggregateParallel(ctx, records, inside.Contains, shards)
	if err != nil {
		return xerrors.Errorf("aggregate: %w", err)
	}
	return printRows(out, mergeRows(caches), aggregator.TotalStats(caches))
}

// mergeRows sums the shard caches so each key is printed once.
func mergeRows(caches []*aggregator.Cache) []model.BatchRow {
	merged := make(map[model.AggregationKey]*model.BatchRow)
	for _, c := range caches {
		for _, row := range c.Rows() {
			if m, ok := merged[row.Key]; ok {
				m.Count.Add(row.Count)
				continue
			}
			r := row
			merged[row.Key] = &r
		}
	}
	rows := make([]model.BatchRow, 0, len(merged))
	for _, r := range merged {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].Key, rows[j].Key
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		return a.Addr.Less(b.Addr)
	})
	return rows
}

func printRows(out io.Writer, rows []model.BatchRow, stats aggregator.Stats) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tADDRESS\tDATE\tHOUR\tINT_IN\tINT_OUT\tEXT_IN\tEXT_OUT")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%02d\t%s\t%s\t%s\t%s\n",
			r.Table, r.Key.Addr, r.Key.Date, r.Key.Hour,
			humanize.Bytes(uint64(r.Count.InternalIn)), humanize.Bytes(uint64(r.Count.InternalOut)),
			humanize.Bytes(uint64(r.Count.ExternalIn)), humanize.Bytes(uint64(r.Count.ExternalOut)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\n%s packets, %s accepted, %s unclassified, %s total\n",
		humanize.Comma(int64(stats.Records)), humanize.Comma(int64(stats.Accepted)),
		humanize.Comma(int64(stats.Unclassified)), humanize.Bytes(uint64(stats.Bytes)))
	return err
}
