// Package store defines the ResultStore interface for keeping the history
// of Monte-Carlo batch reports.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/bankrun/internal/montecarlo"
	"github.com/nvandessel/bankrun/internal/sanitize"
)

// ErrNotFound is returned when a report ID is unknown.
var ErrNotFound = errors.New("report not found")

// Report is one persisted batch.
type Report struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Label is a free-form name given by the caller.
	Label string `json:"label,omitempty"`

	Result *montecarlo.BatchResult `json:"result"`
}

// Summary is the listing row of a report: the headline numbers without
// the series.
type Summary struct {
	ID                 string    `json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	Label              string    `json:"label,omitempty"`
	Seed               uint64    `json:"seed"`
	Runs               int       `json:"runs"`
	Nodes              int       `json:"nodes"`
	NewsScore          float64   `json:"news_score"`
	DefaultProbability float64   `json:"default_probability"`
	MeanCollapseTurn   *float64  `json:"mean_collapse_turn"`
}

// NewReport wraps a batch result with a fresh ID and timestamp. The label
// is passed through sanitize.Label.
func NewReport(label string, res *montecarlo.BatchResult) *Report {
	return &Report{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Label:     sanitize.Label(label),
		Result:    res,
	}
}

// Summary returns the listing row of the report.
func (r *Report) Summary() Summary {
	s := Summary{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		Label:     r.Label,
	}
	if r.Result != nil {
		s.Seed = r.Result.Options.Seed
		s.Runs = r.Result.Options.Runs
		s.Nodes = r.Result.Params.Nodes
		s.NewsScore = r.Result.Params.NewsScore
		s.DefaultProbability = r.Result.DefaultProbability
		s.MeanCollapseTurn = r.Result.MeanCollapseTurn
	}
	return s
}

// ResultStore defines the interface for storing and querying batch reports.
type ResultStore interface {
	// Save persists a report. Saving an existing ID replaces it.
	Save(ctx context.Context, report *Report) error

	// Get returns the full report or ErrNotFound.
	Get(ctx context.Context, id string) (*Report, error)

	// List returns summaries, newest first. A limit of zero or less
	// returns everything.
	List(ctx context.Context, limit int) ([]Summary, error)

	// Delete removes a report or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	Close() error
}

func validateReport(r *Report) error {
	if r == nil {
		return errors.New("report is nil")
	}
	if r.ID == "" {
		return errors.New("report ID is required")
	}
	if r.Result == nil {
		return errors.New("report has no result")
	}
	return nil
}
