package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/spf13/pflag"
)

// Prints the hourly counters of one address on one day, either through the
// collector's HTTP API or straight from the ClickHouse mirror.
func main() {
	mode := pflag.String("mode", "api", "Query mode: 'api' to query via HTTP API, 'direct' to query ClickHouse directly.")
	addr := pflag.String("addr", "", "IPv4 address to look up (required).")
	date := pflag.String("date", time.Now().Format("2006-01-02"), "Day to look up, YYYY-MM-DD.")
	apiBase := pflag.String("api", "http://localhost:9108", "Collector API base URL.")
	chAddr := pflag.String("clickhouse", "localhost:9000", "ClickHouse address for direct mode.")
	chTable := pflag.String("table", "nf_hourly", "ClickHouse mirror table.")
	pflag.Parse()

	if *addr == "" {
		log.Fatal("--addr is required")
	}
	log.Printf("Running in '%s' mode.", *mode)

	switch *mode {
	case "api":
		queryViaAPI(*apiBase, *addr, *date)
	case "direct":
		directQueryClickHouse(*chAddr, *chTable, *addr, *date)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'direct'.", *mode)
	}
}

func queryViaAPI(base, addr, date string) {
	apiURL := fmt.Sprintf("%s/api/v1/hosts/%s/hourly?date=%s", base, url.PathEscape(addr), url.QueryEscape(date))
	log.Printf("Sending request to %s", apiURL)

	resp, err := http.Get(apiURL)
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, respBody, "", "  "); err != nil {
		log.Printf("Could not prettify JSON, printing raw response:")
		fmt.Println(string(respBody))
		return
	}
	fmt.Println(prettyJSON.String())
}

func directQueryClickHouse(chAddr, table, addr, date string) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		log.Fatalf("Invalid date: %v", err)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{chAddr},
		Auth: clickhouse.Auth{Database: "default", Username: "default"},
	})
	if err != nil {
		log.Fatalf("Error connecting to ClickHouse: %v", err)
	}
	defer conn.Close()

	// SummingMergeTree merges lazily, so sum again at read time.
	query := fmt.Sprintf(`
		SELECT hour,
			sum(internal_in), sum(internal_out), sum(external_in), sum(external_out)
		FROM %s
		WHERE address = toIPv4(?) AND date = ?
		GROUP BY hour
		ORDER BY hour`, table)

	rows, err := conn.Query(context.Background(), query, addr, day)
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		found = true
		var (
			hour          uint8
			intIn, intOut int64
			extIn, extOut int64
		)
		if err := rows.Scan(&hour, &intIn, &intOut, &extIn, &extOut); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}
		fmt.Printf("%02d:00  internal_in=%d internal_out=%d external_in=%d external_out=%d\n", hour, intIn, intOut, extIn, extOut)
	}
	if !found {
		log.Println("No data found for the specified criteria.")
	}
	if err := rows.Err(); err != nil {
		log.Printf("An error occurred during row iteration: %v", err)
	}
}
