package event

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

type Event struct {
	ID                    int64       `json:"id"`
	Name                  string      `json:"name"`
	Date                  time.Time   `json:"date"`
	Autoremove            bool        `json:"autoremove"`
	AutoremovePeriod      int         `json:"autoremovePeriod"`
	MaxParticipants       *int        `json:"maxParticipants"`
	WaitingList           bool        `json:"waitingList"`
	EditableRegistrations bool        `json:"editableRegistrations"`
	AdminEmail            string      `json:"adminEmail,omitempty"`
	ExtraEmailContent     string      `json:"extraEmailContent,omitempty"`
	FormFields            []FormField `json:"formFields"`
}

var ErrNotFound = errors.New("event not found")

type CreateEventRequest struct {
	Name                  string      `json:"name" binding:"required,min=1,max=255"`
	Date                  time.Time   `json:"date" binding:"required"`
	Autoremove            bool        `json:"autoremove"`
	AutoremovePeriod      int         `json:"autoremovePeriod" binding:"omitempty,min=1"`
	MaxParticipants       *int        `json:"maxParticipants" binding:"omitempty,min=1"`
	WaitingList           bool        `json:"waitingList"`
	EditableRegistrations bool        `json:"editableRegistrations"`
	AdminEmail            string      `json:"adminEmail" binding:"omitempty,email"`
	ExtraEmailContent     string      `json:"extraEmailContent" binding:"omitempty,max=5000"`
	FormFields            []FormField `json:"formFields" binding:"required,min=1"`
}

// full replacement payload, same shape as create
type UpdateEventRequest = CreateEventRequest

// ActiveFields returns the non-deleted form fields in position order.
// New submissions carry one value per active field.
func (e *Event) ActiveFields() []FormField {
	out := make([]FormField, 0, len(e.FormFields))

	for _, f := range e.FormFields {
		if !f.Deleted {
			out = append(out, f)
		}
	}

	return out
}

// NumberOfPeople derives the seat count of a submission from the field
// flagged as "number of people". It never returns less than 1: a missing,
// non-numeric or zero value still registers one person.
func (e *Event) NumberOfPeople(values []string) int {
	for i, f := range e.ActiveFields() {
		if !f.UseAsNumberOfPeople() {
			continue
		}

		if i >= len(values) {
			return 1
		}

		n, err := strconv.Atoi(strings.TrimSpace(values[i]))

		if err != nil || n == 0 {
			return 1
		}

		return n
	}

	return 1
}

// ConfirmationEmails collects the submitted values of every field flagged as
// confirmation address, preserving field order. An event may notify several
// addresses for a single registration.
func (e *Event) ConfirmationEmails(values []string) []string {
	emails := []string{}

	for i, f := range e.ActiveFields() {
		if !f.IsConfirmationAddress() {
			continue
		}

		if i < len(values) && strings.TrimSpace(values[i]) != "" {
			emails = append(emails, values[i])
		}
	}

	return emails
}

// MapValues pairs a positional submission with field ids. Stored rows are
// keyed by field id, not position, so later reorders and soft-deletes do not
// corrupt historical values.
func (e *Event) MapValues(values []string) map[int64]string {
	out := make(map[int64]string, len(values))

	for i, f := range e.ActiveFields() {
		if f.ID == nil || i >= len(values) {
			continue
		}

		out[*f.ID] = values[i]
	}

	return out
}
