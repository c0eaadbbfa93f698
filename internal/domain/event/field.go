package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

type FieldType string

const (
	FieldText    FieldType = "text"
	FieldEmail   FieldType = "email"
	FieldNumber  FieldType = "number"
	FieldRadio   FieldType = "radio"
	FieldPrivacy FieldType = "privacy"
)

func (t FieldType) IsValid() bool {
	switch t {
	case FieldText, FieldEmail, FieldNumber, FieldRadio, FieldPrivacy:
		return true
	}
	return false
}

var ErrInvalidFieldType = errors.New("invalid field type")

// raised when an extra constraint is attached to a field type it does not belong to
var ErrExtrasMismatch = errors.New("extra constraints do not match the field type")

var ErrDuplicatePeopleField = errors.New(`only one field of type "number of people" is allowed`)

// FieldExtras is the per-type constraint variant. Each field type carries
// only the constraints that are valid for it; compatibility is checked at
// construction time, not at submission time.
type FieldExtras interface {
	appliesTo(t FieldType) bool
}

type NumberExtras struct {
	Min                 *float64 `json:"min,omitempty"`
	Max                 *float64 `json:"max,omitempty"`
	UseAsNumberOfPeople bool     `json:"useAsNumberOfPeople,omitempty"`
}

func (NumberExtras) appliesTo(t FieldType) bool { return t == FieldNumber }

type EmailExtras struct {
	ConfirmationAddress bool `json:"confirmationAddress,omitempty"`
}

func (EmailExtras) appliesTo(t FieldType) bool { return t == FieldEmail }

type RadioExtras struct {
	Options []string `json:"options"`
}

func (RadioExtras) appliesTo(t FieldType) bool { return t == FieldRadio }

// FormField is a single question of an event registration form. ID is nil
// until the field has been persisted. Deleted fields are retired: excluded
// from new submissions but kept for historical reporting.
type FormField struct {
	ID          *int64
	Label       string
	Type        FieldType
	Description *string
	Required    bool
	Extras      FieldExtras
	Position    int
	Deleted     bool
}

// UseAsNumberOfPeople reports whether this field designates the seat count.
func (f FormField) UseAsNumberOfPeople() bool {
	ex, ok := f.Extras.(NumberExtras)
	return ok && f.Type == FieldNumber && ex.UseAsNumberOfPeople
}

// IsConfirmationAddress reports whether submitted values of this field
// should receive confirmation emails.
func (f FormField) IsConfirmationAddress() bool {
	ex, ok := f.Extras.(EmailExtras)
	return ok && f.Type == FieldEmail && ex.ConfirmationAddress
}

// wire representation shared by the HTTP API and the extra DB column

type fieldWire struct {
	ID          *int64     `json:"id,omitempty"`
	FieldType   string     `json:"fieldType"`
	Label       string     `json:"label"`
	Description *string    `json:"description,omitempty"`
	Required    bool       `json:"required"`
	Extra       *extraWire `json:"extra,omitempty"`
	Position    int        `json:"position"`
	Deleted     bool       `json:"deleted,omitempty"`
}

type extraWire struct {
	ConfirmationAddress *bool    `json:"confirmationAddress,omitempty"`
	Min                 *float64 `json:"min,omitempty"`
	Max                 *float64 `json:"max,omitempty"`
	UseAsNumberOfPeople *bool    `json:"useAsNumberOfPeople,omitempty"`
	Options             []string `json:"options,omitempty"`
}

func (f FormField) MarshalJSON() ([]byte, error) {
	w := fieldWire{
		ID:          f.ID,
		FieldType:   string(f.Type),
		Label:       f.Label,
		Description: f.Description,
		Required:    f.Required,
		Position:    f.Position,
		Deleted:     f.Deleted,
	}

	switch ex := f.Extras.(type) {
	case NumberExtras:
		w.Extra = &extraWire{Min: ex.Min, Max: ex.Max}
		if ex.UseAsNumberOfPeople {
			v := true
			w.Extra.UseAsNumberOfPeople = &v
		}
	case EmailExtras:
		if ex.ConfirmationAddress {
			v := true
			w.Extra = &extraWire{ConfirmationAddress: &v}
		}
	case RadioExtras:
		w.Extra = &extraWire{Options: ex.Options}
	}

	return json.Marshal(w)
}

func (f *FormField) UnmarshalJSON(data []byte) error {
	var w fieldWire

	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	t := FieldType(w.FieldType)

	if !t.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidFieldType, w.FieldType)
	}

	extras, err := decodeExtras(t, w.Extra)

	if err != nil {
		return err
	}

	*f = FormField{
		ID:          w.ID,
		Label:       w.Label,
		Type:        t,
		Description: w.Description,
		Required:    w.Required,
		Extras:      extras,
		Position:    w.Position,
		Deleted:     w.Deleted,
	}

	return nil
}

func decodeExtras(t FieldType, w *extraWire) (FieldExtras, error) {
	if w == nil {
		if t == FieldRadio {
			return nil, fmt.Errorf("%w: radio fields require an options list", ErrExtrasMismatch)
		}
		return nil, nil
	}

	if w.ConfirmationAddress != nil && t != FieldEmail {
		return nil, fmt.Errorf("%w: only email fields can be set as confirmation address", ErrExtrasMismatch)
	}
	if w.UseAsNumberOfPeople != nil && t != FieldNumber {
		return nil, fmt.Errorf("%w: only numeric fields can be used to set the number of people", ErrExtrasMismatch)
	}
	if w.Min != nil && t != FieldNumber {
		return nil, fmt.Errorf("%w: only numeric fields can have a minimum value", ErrExtrasMismatch)
	}
	if w.Max != nil && t != FieldNumber {
		return nil, fmt.Errorf("%w: only numeric fields can have a maximum value", ErrExtrasMismatch)
	}
	if w.Options != nil && t != FieldRadio {
		return nil, fmt.Errorf("%w: only radio fields can have an options list", ErrExtrasMismatch)
	}

	switch t {
	case FieldNumber:
		ex := NumberExtras{Min: w.Min, Max: w.Max}
		if w.UseAsNumberOfPeople != nil {
			ex.UseAsNumberOfPeople = *w.UseAsNumberOfPeople
		}
		return ex, nil
	case FieldEmail:
		ex := EmailExtras{}
		if w.ConfirmationAddress != nil {
			ex.ConfirmationAddress = *w.ConfirmationAddress
		}
		return ex, nil
	case FieldRadio:
		if len(w.Options) == 0 {
			return nil, fmt.Errorf("%w: radio fields require an options list", ErrExtrasMismatch)
		}
		return RadioExtras{Options: w.Options}, nil
	}

	return nil, nil
}

// EncodeExtras serializes the extras variant for the extra DB column.
// Returns nil when the field carries no constraints.
func EncodeExtras(f FormField) ([]byte, error) {
	if f.Extras == nil {
		return nil, nil
	}
	return json.Marshal(f.Extras)
}

// DecodeExtras rebuilds the extras variant from the extra DB column.
func DecodeExtras(t FieldType, raw []byte) (FieldExtras, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var w extraWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return decodeExtras(t, &w)
}

// BuildFields normalizes a submitted field list: positions are assigned in
// input order and the single "number of people" invariant is enforced.
func BuildFields(fields []FormField) ([]FormField, error) {
	peopleFieldSet := false

	out := make([]FormField, 0, len(fields))

	for i, f := range fields {
		if f.Extras != nil && !f.Extras.appliesTo(f.Type) {
			return nil, fmt.Errorf("%w: %s field %q", ErrExtrasMismatch, f.Type, f.Label)
		}

		if !f.Deleted && f.UseAsNumberOfPeople() {
			if peopleFieldSet {
				return nil, ErrDuplicatePeopleField
			}
			peopleFieldSet = true
		}

		f.Position = i
		out = append(out, f)
	}

	return out, nil
}
