package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zonia3000/regifair/internal/domain/event"
	"github.com/zonia3000/regifair/internal/observability"
)

type EventsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewEventsRepo(pool *pgxpool.Pool, prom *observability.Prom) *EventsRepo {
	return &EventsRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *EventsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *EventsRepo) Create(ctx context.Context, req event.CreateEventRequest) (e event.Event, err error) {
	fields, err := event.BuildFields(req.FormFields)
	if err != nil {
		return
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = r.observe("events.create", func() error {
		return tx.QueryRow(ctx, `
			INSERT INTO event (name, date, autoremove_submissions, autoremove_submissions_period,
				max_participants, waiting_list, editable_registrations, admin_email, extra_email_content)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`, req.Name, req.Date, req.Autoremove, req.AutoremovePeriod, req.MaxParticipants,
			req.WaitingList, req.EditableRegistrations, req.AdminEmail, req.ExtraEmailContent,
		).Scan(&e.ID)
	})
	if err != nil {
		return
	}

	for i := range fields {
		err = r.insertField(ctx, tx, e.ID, &fields[i])
		if err != nil {
			return
		}
	}

	err = tx.Commit(ctx)
	if err != nil {
		return
	}

	e.Name = req.Name
	e.Date = req.Date
	e.Autoremove = req.Autoremove
	e.AutoremovePeriod = req.AutoremovePeriod
	e.MaxParticipants = req.MaxParticipants
	e.WaitingList = req.WaitingList
	e.EditableRegistrations = req.EditableRegistrations
	e.AdminEmail = req.AdminEmail
	e.ExtraEmailContent = req.ExtraEmailContent
	e.FormFields = fields
	return
}

func (r *EventsRepo) insertField(ctx context.Context, tx pgx.Tx, eventID int64, f *event.FormField) error {
	extra, err := event.EncodeExtras(*f)
	if err != nil {
		return err
	}

	return r.observe("events.insert_field", func() error {
		var id int64
		e := tx.QueryRow(ctx, `
			INSERT INTO event_form_field (event_id, label, type, description, required, extra, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, eventID, f.Label, string(f.Type), f.Description, f.Required, extra, f.Position).Scan(&id)
		if e != nil {
			return e
		}
		f.ID = &id
		return nil
	})
}

// GetByID loads an event with its active form fields in position order.
func (r *EventsRepo) GetByID(ctx context.Context, id int64) (e event.Event, err error) {
	err = r.observe("events.get_by_id", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, name, date, autoremove_submissions, autoremove_submissions_period,
				max_participants, waiting_list, editable_registrations,
				COALESCE(admin_email, ''), COALESCE(extra_email_content, '')
			FROM event WHERE id = $1
		`, id).Scan(&e.ID, &e.Name, &e.Date, &e.Autoremove, &e.AutoremovePeriod,
			&e.MaxParticipants, &e.WaitingList, &e.EditableRegistrations, &e.AdminEmail, &e.ExtraEmailContent)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = event.ErrNotFound
		}
		return
	}

	e.FormFields, err = r.loadFields(ctx, `
		SELECT id, label, type, description, required, extra, position
		FROM event_form_field
		WHERE event_id = $1 AND NOT deleted
		ORDER BY position
	`, id)
	return
}

func (r *EventsRepo) loadFields(ctx context.Context, query string, ownerID int64) (fields []event.FormField, err error) {
	var rows pgx.Rows

	err = r.observe("events.load_fields", func() error {
		var e error
		rows, e = r.pool.Query(ctx, query, ownerID)
		return e
	})
	if err != nil {
		return
	}

	defer rows.Close()

	fields = make([]event.FormField, 0)

	for rows.Next() {
		var f event.FormField
		var id int64
		var typ string
		var extra []byte

		if e := rows.Scan(&id, &f.Label, &typ, &f.Description, &f.Required, &extra, &f.Position); e != nil {
			err = e
			return
		}

		f.ID = &id
		f.Type = event.FieldType(typ)

		f.Extras, err = event.DecodeExtras(f.Type, extra)
		if err != nil {
			return
		}

		fields = append(fields, f)
	}

	err = rows.Err()
	return
}

func (r *EventsRepo) List(ctx context.Context) (events []event.Event, err error) {
	var rows pgx.Rows

	err = r.observe("events.list", func() error {
		var e error
		rows, e = r.pool.Query(ctx, `
			SELECT id, name, date, autoremove_submissions, autoremove_submissions_period,
				max_participants, waiting_list, editable_registrations,
				COALESCE(admin_email, ''), COALESCE(extra_email_content, '')
			FROM event
			ORDER BY date DESC, id DESC
		`)
		return e
	})
	if err != nil {
		return
	}

	defer rows.Close()

	events = make([]event.Event, 0)

	for rows.Next() {
		var e event.Event

		if scanErr := rows.Scan(&e.ID, &e.Name, &e.Date, &e.Autoremove, &e.AutoremovePeriod,
			&e.MaxParticipants, &e.WaitingList, &e.EditableRegistrations, &e.AdminEmail, &e.ExtraEmailContent); scanErr != nil {
			err = scanErr
			return
		}

		events = append(events, e)
	}

	err = rows.Err()
	return
}

// Update replaces the event settings and reconciles the form field list.
// Fields missing from the payload are soft-deleted when existing
// registrations still reference them, hard-deleted otherwise.
func (r *EventsRepo) Update(ctx context.Context, id int64, req event.UpdateEventRequest) (e event.Event, err error) {
	fields, err := event.BuildFields(req.FormFields)
	if err != nil {
		return
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var affected int64

	err = r.observe("events.update", func() error {
		tag, e := tx.Exec(ctx, `
			UPDATE event
			SET name = $2, date = $3, autoremove_submissions = $4, autoremove_submissions_period = $5,
				max_participants = $6, waiting_list = $7, editable_registrations = $8,
				admin_email = $9, extra_email_content = $10
			WHERE id = $1
		`, id, req.Name, req.Date, req.Autoremove, req.AutoremovePeriod, req.MaxParticipants,
			req.WaitingList, req.EditableRegistrations, req.AdminEmail, req.ExtraEmailContent)
		affected = tag.RowsAffected()
		return e
	})
	if err != nil {
		return
	}

	if affected == 0 {
		err = event.ErrNotFound
		return
	}

	kept := make(map[int64]bool)

	for i := range fields {
		f := &fields[i]

		if f.ID == nil {
			err = r.insertField(ctx, tx, id, f)
			if err != nil {
				return
			}
			kept[*f.ID] = true
			continue
		}

		var extra []byte
		extra, err = event.EncodeExtras(*f)
		if err != nil {
			return
		}

		err = r.observe("events.update_field", func() error {
			tag, e := tx.Exec(ctx, `
				UPDATE event_form_field
				SET label = $3, type = $4, description = $5, required = $6, extra = $7, position = $8, deleted = FALSE
				WHERE id = $1 AND event_id = $2
			`, *f.ID, id, f.Label, string(f.Type), f.Description, f.Required, extra, f.Position)
			if e != nil {
				return e
			}
			if tag.RowsAffected() == 0 {
				return event.ErrNotFound
			}
			return nil
		})
		if err != nil {
			return
		}

		kept[*f.ID] = true
	}

	err = r.retireRemovedFields(ctx, tx, id, kept)
	if err != nil {
		return
	}

	err = tx.Commit(ctx)
	if err != nil {
		return
	}

	return r.GetByID(ctx, id)
}

// retireRemovedFields soft-deletes fields still referenced by stored values
// and drops the unreferenced ones. A referenced field is never hard-removed:
// its historical answers must stay reportable.
func (r *EventsRepo) retireRemovedFields(ctx context.Context, tx pgx.Tx, eventID int64, kept map[int64]bool) error {
	var rows pgx.Rows

	err := r.observe("events.list_field_ids", func() error {
		var e error
		rows, e = tx.Query(ctx,
			`SELECT id FROM event_form_field WHERE event_id = $1 AND NOT deleted`, eventID)
		return e
	})
	if err != nil {
		return err
	}

	removed := []int64{}

	for rows.Next() {
		var fid int64
		if e := rows.Scan(&fid); e != nil {
			rows.Close()
			return e
		}
		if !kept[fid] {
			removed = append(removed, fid)
		}
	}

	rows.Close()

	if e := rows.Err(); e != nil {
		return e
	}

	for _, fid := range removed {
		var referenced bool

		err = r.observe("events.field_referenced", func() error {
			return tx.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM event_registration_value WHERE field_id = $1)`, fid).Scan(&referenced)
		})
		if err != nil {
			return err
		}

		if referenced {
			err = r.observe("events.retire_field", func() error {
				_, e := tx.Exec(ctx, `UPDATE event_form_field SET deleted = TRUE WHERE id = $1`, fid)
				return e
			})
		} else {
			err = r.observe("events.drop_field", func() error {
				_, e := tx.Exec(ctx, `DELETE FROM event_form_field WHERE id = $1`, fid)
				return e
			})
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// Delete removes an event and everything it owns: values, registrations and
// form fields go first to satisfy the foreign keys.
func (r *EventsRepo) Delete(ctx context.Context, id int64) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	steps := []struct {
		op    string
		query string
	}{
		{"events.delete.values", `DELETE FROM event_registration_value WHERE registration_id IN (SELECT id FROM event_registration WHERE event_id = $1)`},
		{"events.delete.registrations", `DELETE FROM event_registration WHERE event_id = $1`},
		{"events.delete.fields", `DELETE FROM event_form_field WHERE event_id = $1`},
	}

	for _, s := range steps {
		err = r.observe(s.op, func() error {
			_, e := tx.Exec(ctx, s.query, id)
			return e
		})
		if err != nil {
			return
		}
	}

	var affected int64

	err = r.observe("events.delete", func() error {
		tag, e := tx.Exec(ctx, `DELETE FROM event WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return e
	})
	if err != nil {
		return
	}

	if affected == 0 {
		err = event.ErrNotFound
		return
	}

	err = tx.Commit(ctx)
	return
}
