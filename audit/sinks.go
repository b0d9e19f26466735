package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ZapSink writes entries as structured log lines.
type ZapSink struct {
	log *zap.Logger
}

func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log.Named("audit")}
}

func (s *ZapSink) Write(_ context.Context, e Entry) error {
	s.log.Info("governance decision", zap.Object("entry", e))
	return nil
}

// MemorySink keeps entries in memory.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Write(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// Last returns the most recent entry.
func (s *MemorySink) Last() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// DefaultTable receives audit rows unless another table is configured.
const DefaultTable = "governance_audit"

// PostgresSink appends entries to a table. db is typically a *pgxpool.Pool.
type PostgresSink struct {
	db    execer
	table string
}

func NewPostgresSink(db execer, table string) (*PostgresSink, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("audit: invalid table name %q", table)
	}
	return &PostgresSink{db: db, table: table}, nil
}

// Migrate creates the audit table when it does not exist.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			id            UUID PRIMARY KEY,
			created_at    TIMESTAMPTZ NOT NULL,
			action        TEXT NOT NULL,
			outcome       TEXT NOT NULL,
			network       TEXT,
			scheme        TEXT,
			asset         TEXT,
			amount        NUMERIC,
			pay_to        TEXT,
			payer         TEXT,
			source        TEXT,
			tx_signature  TEXT,
			failed_check  TEXT,
			governance    JSONB NOT NULL,
			latency_ms    BIGINT NOT NULL,
			error         TEXT
		)`)
	return err
}

func (s *PostgresSink) Write(ctx context.Context, e Entry) error {
	gov, err := json.Marshal(e.Governance)
	if err != nil {
		return err
	}
	var amount any
	if e.Amount != "" {
		amount = e.Amount
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO `+s.table+`
		(id, created_at, action, outcome, network, scheme, asset, amount, pay_to, payer, source, tx_signature, failed_check, governance, latency_ms, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, e.ID, e.Timestamp, string(e.Action), string(e.Outcome), e.Network, e.Scheme, e.Asset, amount,
		e.PayTo, e.Payer, e.Source, e.TxSignature, e.FailedCheck, gov, e.LatencyMs, e.Error)
	return err
}
