package notification

import (
	"NetFlowRollup/internal/config"
	"NetFlowRollup/internal/model"
	"context"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// conn is the part of *nats.Conn the notifier uses.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSNotifier publishes cycle reports to a NATS subject as protobuf Structs.
type NATSNotifier struct {
	nc      conn
	subject string
}

var _ model.Notifier = (*NATSNotifier)(nil)

// NewNATSNotifier connects to the NATS server named in cfg.
func NewNATSNotifier(cfg config.NATSConfig) (*NATSNotifier, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("nf-collector"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, xerrors.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &NATSNotifier{nc: nc, subject: cfg.Subject}, nil
}

// Notify serializes the report and publishes it to the configured subject.
func (n *NATSNotifier) Notify(ctx context.Context, report model.CycleReport) error {
	data, err := EncodeReport(report)
	if err != nil {
		return err
	}
	if err := n.nc.Publish(n.subject, data); err != nil {
		return xerrors.Errorf("failed to publish cycle report: %w", err)
	}
	return n.nc.FlushWithContext(ctx)
}

// Close drains and closes the NATS connection.
func (n *NATSNotifier) Close() {
	if n.nc != nil {
		if err := n.nc.Drain(); err != nil {
			log.Warnf("NATS drain failed: %v", err)
			return
		}
		log.Println("NATS connection drained and closed.")
	}
}

// EncodeReport converts a cycle report into a serialized structpb.Struct.
func EncodeReport(r model.CycleReport) ([]byte, error) {
	fields := map[string]any{
		"source":           r.Source,
		"started_at":       r.StartedAt.UTC().Format(time.RFC3339Nano),
		"duration_seconds": r.Duration.Seconds(),
		"records":          r.Records,
		"accepted":         r.Accepted,
		"unclassified":     r.Unclassified,
		"rejected":         r.Rejected,
		"shards":           r.Shards,
		"rows":             r.Rows,
		"chunks":           r.Chunks,
		"fast_chunks":      r.FastChunks,
		"fallback_chunks":  r.FallbackChunks,
		"bytes":            r.Bytes,
	}
	if r.Error != "" {
		fields["error"] = r.Error
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, xerrors.Errorf("failed to build report struct: %w", err)
	}
	return proto.Marshal(s)
}

// DecodeReport is the inverse of EncodeReport, for subscribers of the subject.
func DecodeReport(data []byte) (model.CycleReport, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return model.CycleReport{}, xerrors.Errorf("failed to unmarshal report: %w", err)
	}
	f := s.GetFields()
	num := func(k string) float64 { return f[k].GetNumberValue() }

	started, err := time.Parse(time.RFC3339Nano, f["started_at"].GetStringValue())
	if err != nil {
		return model.CycleReport{}, xerrors.Errorf("bad started_at: %w", err)
	}
	return model.CycleReport{
		Source:         f["source"].GetStringValue(),
		StartedAt:      started,
		Duration:       time.Duration(num("duration_seconds") * float64(time.Second)),
		Records:        int(num("records")),
		Accepted:       int(num("accepted")),
		Unclassified:   int(num("unclassified")),
		Rejected:       int(num("rejected")),
		Shards:         int(num("shards")),
		Rows:           int(num("rows")),
		Chunks:         int(num("chunks")),
		FastChunks:     int(num("fast_chunks")),
		FallbackChunks: int(num("fallback_chunks")),
		Bytes:          int64(num("bytes")),
		Error:          f["error"].GetStringValue(),
	}, nil
}

// NopNotifier discards reports. It is used when NATS is disabled.
type NopNotifier struct{}

// Notify implements model.Notifier.
func (NopNotifier) Notify(context.Context, model.CycleReport) error { return nil }

// Close implements model.Notifier.
func (NopNotifier) Close() {}
