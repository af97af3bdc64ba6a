// Package storagefake provides an in-memory storage.Store that understands the
// statements issued by the upserter and the partition maintainer.
package storagefake

import (
	"NetFlowRollup/internal/model"
	"NetFlowRollup/internal/storage"
	"context"
	"net/netip"
	"regexp"
	"sync"
	"time"

	"github.com/sqlc-dev/pqtype"
	"golang.org/x/xerrors"
)

var (
	insertPattern = regexp.MustCompile(`^INSERT INTO (\w+) \(`)
	createPattern = regexp.MustCompile(`^CREATE TABLE (?:IF NOT EXISTS )?(\w+) \(`)
)

// Call records one statement received by the store.
type Call struct {
	Query string
	Args  []any
	InTx  bool
}

// Table is the content of one partition table.
type Table map[model.AggregationKey]model.FlowCount

// Store is a fake storage.Store. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	tables map[string]Table
	calls  []Call
	txs    int
	rolled int

	// FailOn, when set, is consulted before every statement; a non-nil error
	// fails that statement.
	FailOn func(query string, args []any) error
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store holding the given tables.
func New(tables ...string) *Store {
	s := &Store{tables: make(map[string]Table)}
	for _, t := range tables {
		s.tables[t] = make(Table)
	}
	return s
}

// Exec runs a single statement outside any transaction.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec(ctx, s.tables, query, args, false)
}

// InTx runs fn against a copy of the tables and publishes the copy only when fn
// succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Execer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs++

	work := make(map[string]Table, len(s.tables))
	for name, t := range s.tables {
		cp := make(Table, len(t))
		for k, v := range t {
			cp[k] = v
		}
		work[name] = cp
	}

	if err := fn(txExecer{s: s, tables: work}); err != nil {
		s.rolled++
		return err
	}
	s.tables = work
	return nil
}

// TableExists reports whether name was created.
func (s *Store) TableExists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tables[name]
	return ok, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Row returns the stored counters for key in table.
func (s *Store) Row(table string, key model.AggregationKey) (model.FlowCount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fc, ok := s.tables[table][key]
	return fc, ok
}

// Rows returns a copy of a table's content.
func (s *Store) Rows(table string) Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(Table, len(s.tables[table]))
	for k, v := range s.tables[table] {
		cp[k] = v
	}
	return cp
}

// Calls returns every statement received so far.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Transactions returns how many transactions were started and rolled back.
func (s *Store) Transactions() (started, rolledBack int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs, s.rolled
}

type txExecer struct {
	s      *Store
	tables map[string]Table
}

func (t txExecer) Exec(ctx context.Context, query string, args ...any) error {
	// The store mutex is held by InTx.
	return t.s.exec(ctx, t.tables, query, args, true)
}

func (s *Store) exec(ctx context.Context, tables map[string]Table, query string, args []any, inTx bool) error {
	s.calls = append(s.calls, Call{Query: query, Args: args, InTx: inTx})
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailOn != nil {
		if err := s.FailOn(query, args); err != nil {
			return err
		}
	}

	if m := createPattern.FindStringSubmatch(query); m != nil {
		if _, ok := tables[m[1]]; !ok {
			tables[m[1]] = make(Table)
		}
		return nil
	}

	m := insertPattern.FindStringSubmatch(query)
	if m == nil {
		return xerrors.Errorf("fake store cannot run %q", query)
	}
	table, ok := tables[m[1]]
	if !ok {
		return xerrors.Errorf("relation %q does not exist", m[1])
	}
	if len(args) == 0 || len(args)%7 != 0 {
		return xerrors.Errorf("expected a multiple of 7 args, got %d", len(args))
	}

	// Decode first so a bad row leaves the statement unapplied.
	pending := make([]struct {
		key model.AggregationKey
		fc  model.FlowCount
	}, 0, len(args)/7)
	for i := 0; i < len(args); i += 7 {
		key, fc, err := decodeRow(args[i : i+7])
		if err != nil {
			return err
		}
		if key.Hour > 23 {
			return xerrors.Errorf("hour %d violates valid_hours", key.Hour)
		}
		pending = append(pending, struct {
			key model.AggregationKey
			fc  model.FlowCount
		}{key, fc})
	}
	for _, p := range pending {
		cur := table[p.key]
		cur.Add(p.fc)
		table[p.key] = cur
	}
	return nil
}

func decodeRow(args []any) (model.AggregationKey, model.FlowCount, error) {
	ip, ok := args[0].(pqtype.Inet)
	if !ok {
		return model.AggregationKey{}, model.FlowCount{}, xerrors.Errorf("address arg is %T", args[0])
	}
	addr, ok := netip.AddrFromSlice(ip.IPNet.IP.To4())
	if !ok {
		return model.AggregationKey{}, model.FlowCount{}, xerrors.Errorf("address %v is not IPv4", ip.IPNet.IP)
	}
	date, ok := args[1].(time.Time)
	if !ok {
		return model.AggregationKey{}, model.FlowCount{}, xerrors.Errorf("date arg is %T", args[1])
	}
	hour, ok := args[2].(int16)
	if !ok {
		return model.AggregationKey{}, model.FlowCount{}, xerrors.Errorf("hour arg is %T", args[2])
	}
	var counts [4]int64
	for i := range counts {
		v, ok := args[3+i].(int64)
		if !ok {
			return model.AggregationKey{}, model.FlowCount{}, xerrors.Errorf("counter arg %d is %T", i, args[3+i])
		}
		counts[i] = v
	}
	key := model.AggregationKey{Addr: addr, Date: model.DateOf(date), Hour: uint8(hour)}
	fc := model.FlowCount{
		InternalIn:  counts[0],
		InternalOut: counts[1],
		ExternalIn:  counts[2],
		ExternalOut: counts[3],
	}
	return key, fc, nil
}
