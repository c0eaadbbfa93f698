package event_test

import (
	"reflect"
	"testing"

	"github.com/zonia3000/regifair/internal/domain/event"
)

func fieldID(id int64) *int64 {
	return &id
}

func peopleEvent() event.Event {
	return event.Event{
		ID: 1,
		FormFields: []event.FormField{
			{ID: fieldID(10), Label: "Email", Type: event.FieldEmail, Extras: event.EmailExtras{ConfirmationAddress: true}, Position: 0},
			{ID: fieldID(11), Label: "People", Type: event.FieldNumber, Extras: event.NumberExtras{UseAsNumberOfPeople: true}, Position: 1},
		},
	}
}

func TestNumberOfPeople(t *testing.T) {
	ev := peopleEvent()

	tests := []struct {
		name   string
		values []string
		want   int
	}{
		{"plain count", []string{"a@b.com", "3"}, 3},
		{"missing value", []string{"a@b.com"}, 1},
		{"zero registers one person", []string{"a@b.com", "0"}, 1},
		{"non numeric registers one person", []string{"a@b.com", "many"}, 1},
		{"whitespace tolerated", []string{"a@b.com", " 2 "}, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ev.NumberOfPeople(tc.values)

			if got != tc.want {
				t.Fatalf("NumberOfPeople(%v) = %d, want %d", tc.values, got, tc.want)
			}
		})
	}
}

func TestNumberOfPeopleWithoutPeopleField(t *testing.T) {
	ev := event.Event{
		FormFields: []event.FormField{
			{ID: fieldID(1), Label: "Name", Type: event.FieldText},
		},
	}

	if got := ev.NumberOfPeople([]string{"Rita"}); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestNumberOfPeopleSkipsRetiredField(t *testing.T) {
	ev := event.Event{
		FormFields: []event.FormField{
			{ID: fieldID(1), Label: "Old people", Type: event.FieldNumber, Extras: event.NumberExtras{UseAsNumberOfPeople: true}, Deleted: true},
			{ID: fieldID(2), Label: "Name", Type: event.FieldText, Position: 1},
		},
	}

	// values are positional over active fields only
	if got := ev.NumberOfPeople([]string{"Rita"}); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestConfirmationEmails(t *testing.T) {
	ev := event.Event{
		FormFields: []event.FormField{
			{ID: fieldID(1), Label: "Main", Type: event.FieldEmail, Extras: event.EmailExtras{ConfirmationAddress: true}},
			{ID: fieldID(2), Label: "Name", Type: event.FieldText, Position: 1},
			{ID: fieldID(3), Label: "Second", Type: event.FieldEmail, Extras: event.EmailExtras{ConfirmationAddress: true}, Position: 2},
		},
	}

	got := ev.ConfirmationEmails([]string{"a@b.com", "Rita", "c@d.com"})
	want := []string{"a@b.com", "c@d.com"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	// blank values are not notified
	got = ev.ConfirmationEmails([]string{"", "Rita", "c@d.com"})
	want = []string{"c@d.com"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestMapValuesKeysByFieldID(t *testing.T) {
	ev := event.Event{
		FormFields: []event.FormField{
			{ID: fieldID(7), Label: "Name", Type: event.FieldText},
			{ID: fieldID(9), Label: "Gone", Type: event.FieldText, Deleted: true, Position: 1},
			{ID: fieldID(8), Label: "Email", Type: event.FieldEmail, Position: 2},
		},
	}

	got := ev.MapValues([]string{"Rita", "rita@example.org"})
	want := map[int64]string{7: "Rita", 8: "rita@example.org"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
