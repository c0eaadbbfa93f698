package postgres

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zonia3000/regifair/internal/domain/event"
	"github.com/zonia3000/regifair/internal/domain/registration"
	"github.com/zonia3000/regifair/internal/observability"
	"github.com/zonia3000/regifair/internal/report"
)

type RegistrationsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRegistrationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *RegistrationsRepo {
	return &RegistrationsRepo{
		pool: pool,
		prom: prom,
	}
}

func (repo *RegistrationsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

// lockEvent takes the event row lock so concurrent mutations of the same
// event serialize on the capacity read. Two concurrent creates must never
// both observe the last remaining seat.
func (repo *RegistrationsRepo) lockEvent(ctx context.Context, tx pgx.Tx, eventID int64) error {
	err := repo.observe("registrations.lock_event", func() error {
		var id int64
		return tx.QueryRow(ctx, `SELECT id FROM event WHERE id = $1 FOR UPDATE`, eventID).Scan(&id)
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return event.ErrNotFound
	}

	return err
}

// occupiedSeats counts live registrations only; waiting list entries never
// consume capacity. Must run inside the same transaction as the mutation.
func (repo *RegistrationsRepo) occupiedSeats(ctx context.Context, tx pgx.Tx, eventID int64) (int, error) {
	var occupied int

	err := repo.observe("registrations.count_seats", func() error {
		return tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM event_registration WHERE event_id = $1 AND NOT waiting_list`,
			eventID,
		).Scan(&occupied)
	})

	return occupied, err
}

func (repo *RegistrationsRepo) insertValues(ctx context.Context, tx pgx.Tx, registrationID int64, values map[int64]string) error {
	// deterministic insert order to keep lock acquisition stable
	fieldIDs := make([]int64, 0, len(values))
	for id := range values {
		fieldIDs = append(fieldIDs, id)
	}
	sort.Slice(fieldIDs, func(i, j int) bool { return fieldIDs[i] < fieldIDs[j] })

	for _, fieldID := range fieldIDs {
		err := repo.observe("registrations.insert_value", func() error {
			_, e := tx.Exec(ctx, `
				INSERT INTO event_registration_value (registration_id, field_id, field_value)
				VALUES ($1, $2, $3)
			`, registrationID, fieldID, values[fieldID])
			return e
		})

		if err != nil {
			return err
		}
	}

	return nil
}

// Create admits one registration inside a single transaction. When the event
// is capped, the remaining-seat figure is computed against the locked event
// row; a full event without a waiting list request reports Closed instead of
// inserting anything.
func (repo *RegistrationsRepo) Create(ctx context.Context, req registration.CreateRequest) (reg registration.Registration, out registration.Outcome, err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = repo.lockEvent(ctx, tx, req.EventID)
	if err != nil {
		return
	}

	var remaining *int
	waiting := false

	if req.MaxParticipants != nil {
		var occupied int
		occupied, err = repo.occupiedSeats(ctx, tx, req.EventID)
		if err != nil {
			return
		}

		left := *req.MaxParticipants - occupied

		if left <= 0 {
			if !req.WaitingList {
				// no more seats available, expected outcome
				out.Closed = true
				return
			}
			waiting = true
			left = 0
		} else {
			// this registration takes a live seat
			left--
		}

		remaining = &left
	}

	err = repo.observe("registrations.create.insert", func() error {
		return tx.QueryRow(ctx, `
			INSERT INTO event_registration (event_id, registration_token, number_of_people, waiting_list)
			VALUES ($1, $2, $3, $4)
			RETURNING id, inserted_at, updated_at
		`, req.EventID, req.Token, req.NumberOfPeople, waiting).Scan(&reg.ID, &reg.InsertedAt, &reg.UpdatedAt)
	})
	if err != nil {
		return
	}

	reg.EventID = req.EventID
	reg.Token = req.Token
	reg.NumberOfPeople = req.NumberOfPeople
	reg.WaitingList = waiting

	err = repo.insertValues(ctx, tx, reg.ID, req.Values)
	if err != nil {
		return
	}

	err = tx.Commit(ctx)
	if err != nil {
		return
	}

	out.Remaining = remaining
	out.WaitingList = waiting
	return
}

// Update replaces the whole value set of a registration, all-or-nothing.
// Capacity is not re-checked since no registration is added, but the
// remaining count is recomputed inside the transaction for the caller.
func (repo *RegistrationsRepo) Update(ctx context.Context, req registration.UpdateRequest) (out registration.Outcome, err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = repo.lockEvent(ctx, tx, req.EventID)
	if err != nil {
		return
	}

	var waiting bool

	err = repo.observe("registrations.update.touch", func() error {
		return tx.QueryRow(ctx, `
			UPDATE event_registration
			SET updated_at = now(), number_of_people = $3
			WHERE id = $1 AND event_id = $2
			RETURNING waiting_list
		`, req.RegistrationID, req.EventID, req.NumberOfPeople).Scan(&waiting)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = registration.ErrNotFound
		}
		return
	}

	err = repo.observe("registrations.update.delete_values", func() error {
		_, e := tx.Exec(ctx, `DELETE FROM event_registration_value WHERE registration_id = $1`, req.RegistrationID)
		return e
	})
	if err != nil {
		return
	}

	err = repo.insertValues(ctx, tx, req.RegistrationID, req.Values)
	if err != nil {
		return
	}

	if req.MaxParticipants != nil {
		var occupied int
		occupied, err = repo.occupiedSeats(ctx, tx, req.EventID)
		if err != nil {
			return
		}

		left := *req.MaxParticipants - occupied
		out.Remaining = &left
	}

	err = tx.Commit(ctx)
	if err != nil {
		return
	}

	out.WaitingList = waiting
	return
}

// Delete removes a registration and its values, returning the post-delete
// remaining seats so a collaborator can promote waiting list entrants.
func (repo *RegistrationsRepo) Delete(ctx context.Context, registrationID, eventID int64, maxParticipants *int) (out registration.Outcome, err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = repo.lockEvent(ctx, tx, eventID)
	if err != nil {
		return
	}

	err = repo.observe("registrations.delete.values", func() error {
		_, e := tx.Exec(ctx, `DELETE FROM event_registration_value WHERE registration_id = $1`, registrationID)
		return e
	})
	if err != nil {
		return
	}

	var affected int64

	err = repo.observe("registrations.delete.row", func() error {
		tag, e := tx.Exec(ctx, `DELETE FROM event_registration WHERE id = $1 AND event_id = $2`, registrationID, eventID)
		affected = tag.RowsAffected()
		return e
	})
	if err != nil {
		return
	}

	if affected == 0 {
		err = registration.ErrNotFound
		return
	}

	if maxParticipants != nil {
		var occupied int
		occupied, err = repo.occupiedSeats(ctx, tx, eventID)
		if err != nil {
			return
		}

		left := *maxParticipants - occupied
		out.Remaining = &left
	}

	err = tx.Commit(ctx)
	return
}

// GetByToken loads a registration for attendee self-service, together with
// its values in field position order. Values of soft-deleted fields are
// excluded, missing values come back as empty strings.
func (repo *RegistrationsRepo) GetByToken(ctx context.Context, token string) (reg registration.Registration, values []string, err error) {
	err = repo.observe("registrations.get_by_token", func() error {
		return repo.pool.QueryRow(ctx, `
			SELECT id, event_id, inserted_at, updated_at, number_of_people, waiting_list
			FROM event_registration
			WHERE registration_token = $1
		`, token).Scan(&reg.ID, &reg.EventID, &reg.InsertedAt, &reg.UpdatedAt, &reg.NumberOfPeople, &reg.WaitingList)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = registration.ErrNotFound
		}
		return
	}

	reg.Token = &token

	var rows pgx.Rows

	err = repo.observe("registrations.get_by_token.values", func() error {
		var e error
		rows, e = repo.pool.Query(ctx, `
			SELECT rv.field_value
			FROM event_form_field f
			LEFT JOIN event_registration_value rv ON rv.field_id = f.id AND rv.registration_id = $1
			WHERE f.event_id = $2 AND NOT f.deleted
			ORDER BY f.position
		`, reg.ID, reg.EventID)
		return e
	})
	if err != nil {
		return
	}

	defer rows.Close()

	values = make([]string, 0)

	for rows.Next() {
		var v *string

		if e := rows.Scan(&v); e != nil {
			err = e
			return
		}

		if v == nil {
			values = append(values, "")
		} else {
			values = append(values, *v)
		}
	}

	err = rows.Err()
	return
}

// ListForReport returns the flat (registration x field) rows of one report
// page, most recent registrations first, plus the page-independent total.
// Soft-deleted fields are included so historical answers stay reportable.
func (repo *RegistrationsRepo) ListForReport(ctx context.Context, eventID int64, limit, offset int) (rows []report.Row, total int, err error) {
	var pgRows pgx.Rows

	err = repo.observe("registrations.list_for_report", func() error {
		var e error
		pgRows, e = repo.pool.Query(ctx, `
			SELECT r.id, r.inserted_at, f.label, f.deleted, rv.field_value
			FROM event_registration r
			JOIN (
				SELECT id FROM event_registration
				WHERE event_id = $1
				ORDER BY id DESC
				LIMIT $2 OFFSET $3
			) page ON page.id = r.id
			JOIN event_form_field f ON f.event_id = r.event_id
			LEFT JOIN event_registration_value rv ON rv.field_id = f.id AND rv.registration_id = r.id
			ORDER BY r.id DESC, f.deleted, f.position
		`, eventID, limit, offset)
		return e
	})
	if err != nil {
		return
	}

	defer pgRows.Close()

	rows = make([]report.Row, 0)

	for pgRows.Next() {
		var row report.Row

		if e := pgRows.Scan(&row.RegistrationID, &row.InsertedAt, &row.Label, &row.FieldDeleted, &row.Value); e != nil {
			err = e
			return
		}

		rows = append(rows, row)
	}

	if e := pgRows.Err(); e != nil {
		err = e
		return
	}

	err = repo.observe("registrations.count_for_event", func() error {
		return repo.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM event_registration WHERE event_id = $1`, eventID,
		).Scan(&total)
	})

	return
}

// PromoteWaiting moves the oldest waiting list entrants into freed seats,
// under the same event row lock as the allocator mutations. Returns the ids
// of the promoted registrations so the caller can notify them.
func (repo *RegistrationsRepo) PromoteWaiting(ctx context.Context, eventID int64, maxParticipants *int) (promoted []int64, err error) {
	if maxParticipants == nil {
		return nil, nil
	}

	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = repo.lockEvent(ctx, tx, eventID)
	if err != nil {
		return
	}

	occupied, err := repo.occupiedSeats(ctx, tx, eventID)
	if err != nil {
		return
	}

	free := *maxParticipants - occupied

	if free <= 0 {
		err = tx.Commit(ctx)
		return
	}

	var rows pgx.Rows

	err = repo.observe("registrations.promote.select", func() error {
		var e error
		rows, e = tx.Query(ctx, `
			SELECT id FROM event_registration
			WHERE event_id = $1 AND waiting_list
			ORDER BY id
			LIMIT $2
			FOR UPDATE
		`, eventID, free)
		return e
	})
	if err != nil {
		return
	}

	promoted = make([]int64, 0, free)

	for rows.Next() {
		var id int64

		if e := rows.Scan(&id); e != nil {
			rows.Close()
			err = e
			return
		}

		promoted = append(promoted, id)
	}

	rows.Close()

	if e := rows.Err(); e != nil {
		err = e
		return
	}

	for _, id := range promoted {
		err = repo.observe("registrations.promote.update", func() error {
			_, e := tx.Exec(ctx, `UPDATE event_registration SET waiting_list = FALSE WHERE id = $1`, id)
			return e
		})
		if err != nil {
			return
		}
	}

	err = tx.Commit(ctx)
	return
}

// ConfirmationAddresses returns the stored email values of a registration
// for fields flagged as confirmation address.
func (repo *RegistrationsRepo) ConfirmationAddresses(ctx context.Context, registrationID int64) (emails []string, err error) {
	var rows pgx.Rows

	err = repo.observe("registrations.confirmation_addresses", func() error {
		var e error
		rows, e = repo.pool.Query(ctx, `
			SELECT rv.field_value
			FROM event_registration_value rv
			JOIN event_form_field f ON f.id = rv.field_id
			WHERE rv.registration_id = $1
			  AND f.type = 'email'
			  AND f.extra IS NOT NULL
			  AND (f.extra::jsonb ->> 'confirmationAddress')::boolean
			ORDER BY f.position
		`, registrationID)
		return e
	})
	if err != nil {
		return
	}

	defer rows.Close()

	emails = make([]string, 0)

	for rows.Next() {
		var v *string

		if e := rows.Scan(&v); e != nil {
			err = e
			return
		}

		if v != nil && *v != "" {
			emails = append(emails, *v)
		}
	}

	err = rows.Err()
	return
}

// PurgeExpired deletes registrations of autoremove-enabled events whose date
// plus retention period has passed. Runs from the worker on a schedule.
func (repo *RegistrationsRepo) PurgeExpired(ctx context.Context) (removed int64, err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	expired := `
		SELECT r.id
		FROM event_registration r
		JOIN event e ON e.id = r.event_id
		WHERE e.autoremove_submissions
		  AND e.date + make_interval(days => e.autoremove_submissions_period) < now()
	`

	err = repo.observe("registrations.purge.values", func() error {
		_, e := tx.Exec(ctx, `DELETE FROM event_registration_value WHERE registration_id IN (`+expired+`)`)
		return e
	})
	if err != nil {
		return
	}

	err = repo.observe("registrations.purge.rows", func() error {
		tag, e := tx.Exec(ctx, `DELETE FROM event_registration WHERE id IN (`+expired+`)`)
		removed = tag.RowsAffected()
		return e
	})
	if err != nil {
		return
	}

	err = tx.Commit(ctx)
	return
}
