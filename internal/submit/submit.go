// Package submit hands finished (or abandoned) capture generations to a lead
// sink. Submission is attempted once per call and never retried; failures
// are logged and traced, and the conversation carries on.
package submit

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/leadcap/internal/contact"
)

// StatusSuccess is the only sink status treated as a successful submission.
const StatusSuccess = "Success"

// SinkResult is a sink's answer to one submission.
type SinkResult struct {
	Status  string `json:"status"`
	RefID   string `json:"refId,omitempty"`
	Message string `json:"message,omitempty"`
}

// Extras is request context forwarded to the sink alongside the lead.
type Extras struct {
	Channel    string `json:"channel,omitempty"`
	CurrentURL string `json:"currentUrl,omitempty"`
}

// Sink receives leads. Resubmissions carry the ref id of the earlier
// submission and must replace it.
type Sink interface {
	Send(ctx context.Context, lead *contact.Lead, extras Extras) (SinkResult, error)
}

// DateRange bounds an availability lookup. Both ends are inclusive days.
type DateRange struct {
	From time.Time
	To   time.Time
}

type AvailabilityOptions struct {
	ClassID string
}

// AvailabilityProvider reports the days a business cannot take bookings.
type AvailabilityProvider interface {
	GetAvailability(ctx context.Context, r DateRange, opts AvailabilityOptions) (busyDays []string, err error)
}

// JobType is a CRM job classification resolved from a free-text
// description.
type JobType struct {
	ID      string `json:"id"`
	ClassID string `json:"class,omitempty"`
	Name    string `json:"name,omitempty"`
}

// JobTypeResolver maps a description to a job type. A nil result with a nil
// error means no match.
type JobTypeResolver interface {
	GetJobType(ctx context.Context, description string) (*JobType, error)
}

// NewRefID returns a fresh lead reference id.
func NewRefID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
