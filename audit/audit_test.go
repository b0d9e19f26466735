package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vitwit/x402gov/logger"
)

type fakeDB struct {
	sql  []string
	args [][]any
	err  error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, append([]any(nil), args...))
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

type failingSink struct{}

func (failingSink) Write(context.Context, Entry) error { return errors.New("disk full") }

type panickingSink struct{}

func (panickingSink) Write(context.Context, Entry) error { panic("boom") }

func sampleEntry() Entry {
	return Entry{
		Action:      ActionSettle,
		Outcome:     OutcomeDenied,
		Network:     "solana-devnet",
		Amount:      "1000",
		PayTo:       "merchant",
		Payer:       "agent",
		FailedCheck: "ofac",
		Governance:  Governance{Replay: "pass", OFAC: "fail"},
		LatencyMs:   12,
		Error:       "address agent is on sanctions list sdn",
	}
}

func TestRecordStampsAndFansOut(t *testing.T) {
	mem := NewMemorySink()
	other := NewMemorySink()
	l := New(nil, mem, other)

	got := l.Record(context.Background(), sampleEntry())
	_, err := uuid.Parse(got.ID)
	require.NoError(t, err)
	assert.False(t, got.Timestamp.IsZero())

	require.Len(t, mem.Entries(), 1)
	require.Len(t, other.Entries(), 1)
	last, ok := mem.Last()
	require.True(t, ok)
	assert.Equal(t, got, last)
}

func TestSinkFailuresAreSwallowed(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	mem := NewMemorySink()
	l := New(logger.NewZapLoggerFrom(zap.New(core)), failingSink{}, panickingSink{}, mem)

	assert.NotPanics(t, func() { l.Record(context.Background(), sampleEntry()) })
	assert.Len(t, mem.Entries(), 1)
	assert.Equal(t, 2, logs.FilterMessage("audit sink write failed").Len())
}

func TestZapSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	e := sampleEntry()
	e.ID = "id-1"
	e.Timestamp = time.Unix(0, 0)
	require.NoError(t, sink.Write(context.Background(), e))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "audit", entry.LoggerName)
	fields := entry.ContextMap()["entry"].(map[string]any)
	assert.Equal(t, "settle", fields["action"])
	assert.Equal(t, "ofac", fields["failed_check"])
	gov := fields["governance"].(map[string]any)
	assert.Equal(t, "fail", gov["ofac"])
	assert.NotContains(t, gov, "budget")
}

func TestPostgresSink(t *testing.T) {
	db := &fakeDB{}
	sink, err := NewPostgresSink(db, "")
	require.NoError(t, err)
	require.NoError(t, sink.Migrate(context.Background()))
	assert.Contains(t, db.sql[0], "CREATE TABLE IF NOT EXISTS governance_audit")

	e := New(nil).Record(context.Background(), sampleEntry())
	require.NoError(t, sink.Write(context.Background(), e))
	require.Len(t, db.args, 2)
	args := db.args[1]
	require.Len(t, args, 16)
	assert.Equal(t, e.ID, args[0])
	assert.Equal(t, "settle", args[2])
	assert.Equal(t, "1000", args[7])

	var gov Governance
	require.NoError(t, json.Unmarshal(args[13].([]byte), &gov))
	assert.Equal(t, "fail", gov.OFAC)

	e.Amount = ""
	require.NoError(t, sink.Write(context.Background(), e))
	assert.Nil(t, db.args[2][7])
}

func TestPostgresSinkErrors(t *testing.T) {
	_, err := NewPostgresSink(&fakeDB{}, "audit; DROP TABLE users")
	assert.Error(t, err)

	sink, err := NewPostgresSink(&fakeDB{err: errors.New("conn closed")}, "audit_log")
	require.NoError(t, err)
	assert.EqualError(t, sink.Write(context.Background(), sampleEntry()), "conn closed")
}
