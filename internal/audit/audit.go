package audit

import (
	"context"
	"time"
)

// Actions recorded by the API layer.
const (
	ActionConnect   = "connect"
	ActionCommand   = "command"
	ActionDelete    = "delete"
	ActionConfigure = "configure"
)

// Entity types.
const (
	EntityDevice = "device"
	EntityBroker = "broker"
)

// SourceAPI marks entries written by the HTTP API.
const SourceAPI = "api"

// Entry is a single audit trail row.
type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Subject    string         `json:"subject,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	Limit      int // default 50, max 200
	Offset     int
}

// ListResult is one page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository persists audit entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// Logger is the subset of the application logger used by Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder writes entries on a best-effort basis: a failed insert is logged
// and never fails the operator's request.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder wraps repo. A nil repo makes Record a no-op.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record stores one entry.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.repo == nil {
		return
	}
	if e.Source == "" {
		e.Source = SourceAPI
	}
	if err := r.repo.Create(ctx, &e); err != nil && r.logger != nil {
		r.logger.Warn("audit record failed",
			"action", e.Action,
			"entity_type", e.EntityType,
			"entity_id", e.EntityID,
			"error", err,
		)
	}
}
