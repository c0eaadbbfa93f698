package registration

import (
	"errors"
	"time"
)

type Registration struct {
	ID             int64     `json:"id"`
	EventID        int64     `json:"eventId"`
	Token          *string   `json:"-"`
	InsertedAt     time.Time `json:"insertedAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	NumberOfPeople int       `json:"numberOfPeople"`
	WaitingList    bool      `json:"waitingList"`
}

var ErrNotFound = errors.New("registration not found")

// Outcome is the capacity state returned by every allocator mutation.
// Remaining is nil when the event has no participant limit. Closed reports
// capacity exhaustion on create: an expected business outcome, not an error,
// so callers branch on it instead of an error value.
type Outcome struct {
	Remaining   *int `json:"remainingSeats"`
	WaitingList bool `json:"waitingList"`
	Closed      bool `json:"-"`
}

// CreateRequest carries everything the allocator needs to admit one
// registration inside a single transaction.
type CreateRequest struct {
	EventID         int64
	Token           *string
	Values          map[int64]string
	MaxParticipants *int
	NumberOfPeople  int
	// the submitter accepts a waiting list spot if capacity ran out
	WaitingList bool
}

// UpdateRequest replaces the full value set of an existing registration.
type UpdateRequest struct {
	RegistrationID  int64
	EventID         int64
	Values          map[int64]string
	MaxParticipants *int
	NumberOfPeople  int
}
