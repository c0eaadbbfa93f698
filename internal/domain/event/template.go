package event

import "errors"

// Template is a reusable form blueprint an admin instantiates new events
// from. It shares the form field schema and its invariants.
type Template struct {
	ID                    int64       `json:"id"`
	Name                  string      `json:"name"`
	Autoremove            bool        `json:"autoremove"`
	AutoremovePeriod      int         `json:"autoremovePeriod"`
	WaitingList           bool        `json:"waitingList"`
	EditableRegistrations bool        `json:"editableRegistrations"`
	AdminEmail            string      `json:"adminEmail,omitempty"`
	ExtraEmailContent     string      `json:"extraEmailContent,omitempty"`
	FormFields            []FormField `json:"formFields"`
}

var ErrTemplateNotFound = errors.New("template not found")

type CreateTemplateRequest struct {
	Name                  string      `json:"name" binding:"required,min=1,max=255"`
	Autoremove            bool        `json:"autoremove"`
	AutoremovePeriod      int         `json:"autoremovePeriod" binding:"omitempty,min=1"`
	WaitingList           bool        `json:"waitingList"`
	EditableRegistrations bool        `json:"editableRegistrations"`
	AdminEmail            string      `json:"adminEmail" binding:"omitempty,email"`
	ExtraEmailContent     string      `json:"extraEmailContent" binding:"omitempty,max=5000"`
	FormFields            []FormField `json:"formFields" binding:"required,min=1"`
}

type UpdateTemplateRequest = CreateTemplateRequest
