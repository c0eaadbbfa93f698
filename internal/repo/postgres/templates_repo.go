package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zonia3000/regifair/internal/domain/event"
	"github.com/zonia3000/regifair/internal/observability"
)

// TemplatesRepo persists reusable form blueprints. Templates have no
// registrations referencing them, so field updates are a plain replace.
type TemplatesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewTemplatesRepo(pool *pgxpool.Pool, prom *observability.Prom) *TemplatesRepo {
	return &TemplatesRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *TemplatesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *TemplatesRepo) Create(ctx context.Context, req event.CreateTemplateRequest) (t event.Template, err error) {
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

	err = r.observe("templates.create", func() error {
		return tx.QueryRow(ctx, `
			INSERT INTO event_template (name, autoremove_submissions, autoremove_submissions_period,
				waiting_list, editable_registrations, admin_email, extra_email_content)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, req.Name, req.Autoremove, req.AutoremovePeriod, req.WaitingList,
			req.EditableRegistrations, req.AdminEmail, req.ExtraEmailContent).Scan(&t.ID)
	})
	if err != nil {
		return
	}

	err = r.insertFields(ctx, tx, t.ID, fields)
	if err != nil {
		return
	}

	err = tx.Commit(ctx)
	if err != nil {
		return
	}

	t.Name = req.Name
	t.Autoremove = req.Autoremove
	t.AutoremovePeriod = req.AutoremovePeriod
	t.WaitingList = req.WaitingList
	t.EditableRegistrations = req.EditableRegistrations
	t.AdminEmail = req.AdminEmail
	t.ExtraEmailContent = req.ExtraEmailContent
	t.FormFields = fields
	return
}

func (r *TemplatesRepo) insertFields(ctx context.Context, tx pgx.Tx, templateID int64, fields []event.FormField) error {
	for i := range fields {
		f := &fields[i]

		extra, err := event.EncodeExtras(*f)
		if err != nil {
			return err
		}

		err = r.observe("templates.insert_field", func() error {
			var id int64
			e := tx.QueryRow(ctx, `
				INSERT INTO event_template_form_field (template_id, label, type, description, required, extra, position)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id
			`, templateID, f.Label, string(f.Type), f.Description, f.Required, extra, f.Position).Scan(&id)
			if e != nil {
				return e
			}
			f.ID = &id
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *TemplatesRepo) GetByID(ctx context.Context, id int64) (t event.Template, err error) {
	err = r.observe("templates.get_by_id", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, name, autoremove_submissions, autoremove_submissions_period,
				waiting_list, editable_registrations,
				COALESCE(admin_email, ''), COALESCE(extra_email_content, '')
			FROM event_template WHERE id = $1
		`, id).Scan(&t.ID, &t.Name, &t.Autoremove, &t.AutoremovePeriod,
			&t.WaitingList, &t.EditableRegistrations, &t.AdminEmail, &t.ExtraEmailContent)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = event.ErrTemplateNotFound
		}
		return
	}

	var rows pgx.Rows

	err = r.observe("templates.load_fields", func() error {
		var e error
		rows, e = r.pool.Query(ctx, `
			SELECT id, label, type, description, required, extra, position
			FROM event_template_form_field
			WHERE template_id = $1
			ORDER BY position
		`, id)
		return e
	})
	if err != nil {
		return
	}

	defer rows.Close()

	t.FormFields = make([]event.FormField, 0)

	for rows.Next() {
		var f event.FormField
		var fid int64
		var typ string
		var extra []byte

		if e := rows.Scan(&fid, &f.Label, &typ, &f.Description, &f.Required, &extra, &f.Position); e != nil {
			err = e
			return
		}

		f.ID = &fid
		f.Type = event.FieldType(typ)

		f.Extras, err = event.DecodeExtras(f.Type, extra)
		if err != nil {
			return
		}

		t.FormFields = append(t.FormFields, f)
	}

	err = rows.Err()
	return
}

func (r *TemplatesRepo) List(ctx context.Context) (templates []event.Template, err error) {
	var rows pgx.Rows

	err = r.observe("templates.list", func() error {
		var e error
		rows, e = r.pool.Query(ctx, `
			SELECT id, name, autoremove_submissions, autoremove_submissions_period,
				waiting_list, editable_registrations,
				COALESCE(admin_email, ''), COALESCE(extra_email_content, '')
			FROM event_template
			ORDER BY name, id
		`)
		return e
	})
	if err != nil {
		return
	}

	defer rows.Close()

	templates = make([]event.Template, 0)

	for rows.Next() {
		var t event.Template

		if scanErr := rows.Scan(&t.ID, &t.Name, &t.Autoremove, &t.AutoremovePeriod,
			&t.WaitingList, &t.EditableRegistrations, &t.AdminEmail, &t.ExtraEmailContent); scanErr != nil {
			err = scanErr
			return
		}

		templates = append(templates, t)
	}

	err = rows.Err()
	return
}

func (r *TemplatesRepo) Update(ctx context.Context, id int64, req event.UpdateTemplateRequest) (t event.Template, err error) {
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

	err = r.observe("templates.update", func() error {
		tag, e := tx.Exec(ctx, `
			UPDATE event_template
			SET name = $2, autoremove_submissions = $3, autoremove_submissions_period = $4,
				waiting_list = $5, editable_registrations = $6, admin_email = $7, extra_email_content = $8
			WHERE id = $1
		`, id, req.Name, req.Autoremove, req.AutoremovePeriod, req.WaitingList,
			req.EditableRegistrations, req.AdminEmail, req.ExtraEmailContent)
		affected = tag.RowsAffected()
		return e
	})
	if err != nil {
		return
	}

	if affected == 0 {
		err = event.ErrTemplateNotFound
		return
	}

	err = r.observe("templates.drop_fields", func() error {
		_, e := tx.Exec(ctx, `DELETE FROM event_template_form_field WHERE template_id = $1`, id)
		return e
	})
	if err != nil {
		return
	}

	err = r.insertFields(ctx, tx, id, fields)
	if err != nil {
		return
	}

	err = tx.Commit(ctx)
	if err != nil {
		return
	}

	return r.GetByID(ctx, id)
}

func (r *TemplatesRepo) Delete(ctx context.Context, id int64) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = r.observe("templates.delete_fields", func() error {
		_, e := tx.Exec(ctx, `DELETE FROM event_template_form_field WHERE template_id = $1`, id)
		return e
	})
	if err != nil {
		return
	}

	var affected int64

	err = r.observe("templates.delete", func() error {
		tag, e := tx.Exec(ctx, `DELETE FROM event_template WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return e
	})
	if err != nil {
		return
	}

	if affected == 0 {
		err = event.ErrTemplateNotFound
		return
	}

	err = tx.Commit(ctx)
	return
}
