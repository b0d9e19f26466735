package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vitwit/x402gov/logger"
)

// Sink persists audit entries.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Logger fans entries out to its sinks. Sink failures are reported on the
// process logger and never returned: auditing must not fail the payment.
type Logger struct {
	sinks []Sink
	log   logger.Logger
	now   func() time.Time
}

func New(log logger.Logger, sinks ...Sink) *Logger {
	return &Logger{sinks: sinks, log: logger.OrNoop(log), now: time.Now}
}

// Record stamps e with an id and timestamp when missing and writes it to
// every sink synchronously.
func (l *Logger) Record(ctx context.Context, e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	for _, s := range l.sinks {
		if err := l.write(ctx, s, e); err != nil {
			l.log.Error("audit sink write failed", map[string]any{
				"audit_id": e.ID,
				"action":   string(e.Action),
				"error":    err,
			})
		}
	}
	return e
}

func (l *Logger) write(ctx context.Context, s Sink, e Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{r}
		}
	}()
	return s.Write(ctx, e)
}
