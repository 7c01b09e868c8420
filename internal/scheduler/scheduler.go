package scheduler

import (
	"encoding/json"
	"errors"

	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidCronExpr = errors.New("invalid cron expression")
	ErrEntryNotFound   = errors.New("cron entry not found")
)

// CronEntry is one scheduled enqueue. Lifetime is bound to the scheduler
// instance that owns it.
type CronEntry struct {
	ID             string          `json:"id"`
	CronExpression string          `json:"cronExpression"`
	JobType        string          `json:"jobType"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Enabled        bool            `json:"enabled"`
}

// Scheduler turns cron expressions into queue enqueues. The in-process
// variant ticks locally; the external variant reflects entries that a
// managed cron service fires against the worker.
type Scheduler interface {
	Schedule(expr string, jobType string, payload json.RawMessage) (string, error)
	Unschedule(id string) error
	List() []CronEntry
	StopAll()
}

// standard five-field cron, interpreted in UTC
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateExpr rejects anything that is not a five-field cron expression.
func ValidateExpr(expr string) error {
	_, err := parser.Parse(expr)

	if err != nil {
		return ErrInvalidCronExpr
	}

	return nil
}
