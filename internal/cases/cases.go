// Package cases tracks manual-review cases opened for blocked transactions.
//
// The risk engine only recommends; when it recommends block, the decision
// handler opens a case here so a compliance operator reviews the account
// before funds move again. Cases carry the actor's region tag, which is what
// region-scope enforcement checks for regional managers.
package cases

import (
	"context"
	"errors"
	"time"

	"github.com/sendaka/sendaka/internal/risk"
)

// Errors
var (
	ErrCaseNotFound  = errors.New("cases: not found")
	ErrAlreadyClosed = errors.New("cases: case already resolved")
	ErrAlreadyOpen   = errors.New("cases: case already open")
)

// Status of a review case.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Case is a manual-review record opened for a blocked transaction.
type Case struct {
	ID           string        `json:"id"`
	ActorID      string        `json:"actorId"`
	Region       string        `json:"region,omitempty"`
	AssessmentID string        `json:"assessmentId"`
	Score        int           `json:"score"`
	Level        risk.Level    `json:"level"`
	Signals      []risk.Signal `json:"signals"`
	Status       Status        `json:"status"`
	OpenedAt     time.Time     `json:"openedAt"`
	ResolvedAt   *time.Time    `json:"resolvedAt,omitempty"`
	ResolvedBy   string        `json:"resolvedBy,omitempty"`
	Note         string        `json:"note,omitempty"`
}

// ListFilter narrows a case listing. Zero fields are ignored.
type ListFilter struct {
	ActorID string
	Region  string // region scope pushed into the query
	Status  Status
	Limit   int
}

// Store persists review cases.
type Store interface {
	Create(ctx context.Context, c *Case) error
	Get(ctx context.Context, id string) (*Case, error)
	List(ctx context.Context, f ListFilter) ([]*Case, error)
	Update(ctx context.Context, c *Case) error
}
