package audit

import (
	"context"
	"database/sql"
	"time"
)

const (
	TypeLaunch           = "LtiLaunch"
	TypeAttemptCompleted = "AttemptCompleted"
	TypeGradePosted      = "GradePosted"
)

type Event struct {
	Type     string
	Key      string // natural key: student or attempt id
	DataJSON string
}

type Sink interface {
	Append(ctx context.Context, e Event) error
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// Discard drops events; used in tests and when auditing is disabled.
type Discard struct{}

func (Discard) Append(context.Context, Event) error { return nil }
