package report

import "time"

// Row is one record of the flat (registration x field) join the store
// produces for a page of registrations, most recent first.
type Row struct {
	RegistrationID int64
	InsertedAt     time.Time
	Label          string
	FieldDeleted   bool
	Value          *string
}

type Column struct {
	Label   string `json:"label"`
	Deleted bool   `json:"deleted"`
}

type Report struct {
	Head  []Column   `json:"head"`
	Body  [][]string `json:"body"`
	Total int        `json:"total"`
}

// Build pivots flat rows into a tabular report. Columns appear in first-seen
// order and keep soft-deleted fields, since their historical values must stay
// visible. Each body row starts with the insertion timestamp followed by one
// cell per column, empty when the registration has no value for that label
// (fields added after the registration was created).
func Build(rows []Row, total int) Report {
	head := []Column{}
	headIndex := map[string]int{}

	ids := []int64{}
	inserted := map[int64]time.Time{}
	values := map[int64]map[string]string{}

	for _, row := range rows {
		if _, ok := values[row.RegistrationID]; !ok {
			ids = append(ids, row.RegistrationID)
			inserted[row.RegistrationID] = row.InsertedAt
			values[row.RegistrationID] = map[string]string{}
		}

		if _, ok := headIndex[row.Label]; !ok {
			headIndex[row.Label] = len(head)
			head = append(head, Column{Label: row.Label, Deleted: row.FieldDeleted})
		}

		if row.Value != nil {
			values[row.RegistrationID][row.Label] = *row.Value
		}
	}

	body := make([][]string, 0, len(ids))

	for _, id := range ids {
		row := make([]string, 0, len(head)+1)
		row = append(row, inserted[id].Format(time.DateTime))

		for _, col := range head {
			row = append(row, values[id][col.Label])
		}

		body = append(body, row)
	}

	return Report{Head: head, Body: body, Total: total}
}
