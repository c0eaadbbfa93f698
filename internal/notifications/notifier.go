package notifications

import "context"

type Kind string

const (
	KindRegistrationCreated Kind = "registration_created"
	KindRegistrationUpdated Kind = "registration_updated"
	KindRegistrationDeleted Kind = "registration_deleted"
	KindWaitingListPromoted Kind = "waiting_list_promoted"
)

// Notification is everything an external mailer needs to act on a
// registration change. The core never sends mail itself.
type Notification struct {
	Kind              Kind     `json:"kind"`
	EventID           int64    `json:"eventId"`
	EventName         string   `json:"eventName"`
	RegistrationID    int64    `json:"registrationId"`
	AdminEmail        string   `json:"adminEmail,omitempty"`
	Addresses         []string `json:"addresses,omitempty"`
	ExtraEmailContent string   `json:"extraEmailContent,omitempty"`
	WaitingList       bool     `json:"waitingList,omitempty"`
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
