package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// six logical tables; values are keyed by (registration, field) so field
// reordering and soft-deletes never corrupt historical rows
var schema = []string{
	`CREATE TABLE IF NOT EXISTS event (
		id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		name varchar(255) NOT NULL,
		date date NOT NULL,
		autoremove_submissions boolean NOT NULL DEFAULT TRUE,
		autoremove_submissions_period int NOT NULL DEFAULT 30,
		max_participants int DEFAULT NULL,
		waiting_list boolean NOT NULL DEFAULT FALSE,
		editable_registrations boolean NOT NULL DEFAULT TRUE,
		admin_email varchar(255) NULL,
		extra_email_content text NULL
	)`,
	`CREATE TABLE IF NOT EXISTS event_form_field (
		id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		event_id bigint NOT NULL REFERENCES event (id),
		label varchar(255) NOT NULL,
		type varchar(255) NOT NULL,
		description text NULL,
		required boolean NOT NULL DEFAULT TRUE,
		extra text NULL,
		position int NOT NULL,
		deleted boolean NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS event_template (
		id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		name varchar(255) NOT NULL,
		autoremove_submissions boolean NOT NULL DEFAULT TRUE,
		autoremove_submissions_period int NOT NULL DEFAULT 30,
		waiting_list boolean NOT NULL DEFAULT FALSE,
		editable_registrations boolean NOT NULL DEFAULT TRUE,
		admin_email varchar(255) NULL,
		extra_email_content text NULL
	)`,
	`CREATE TABLE IF NOT EXISTS event_template_form_field (
		id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		template_id bigint NOT NULL REFERENCES event_template (id),
		label varchar(255) NOT NULL,
		type varchar(255) NOT NULL,
		description text NULL,
		required boolean NOT NULL DEFAULT TRUE,
		extra text NULL,
		position int NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS event_registration (
		id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		event_id bigint NOT NULL REFERENCES event (id),
		registration_token varchar(255) NULL UNIQUE,
		inserted_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		number_of_people int NOT NULL DEFAULT 1,
		waiting_list boolean NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS event_registration_value (
		registration_id bigint NOT NULL REFERENCES event_registration (id),
		field_id bigint NOT NULL REFERENCES event_form_field (id),
		field_value text NULL,
		PRIMARY KEY (registration_id, field_id)
	)`,
	`CREATE INDEX IF NOT EXISTS event_registration_event_idx
		ON event_registration (event_id, waiting_list)`,
}

// Migrate creates the schema on startup. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
