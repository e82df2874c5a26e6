package postgres

import (
	"context"
	"fmt"

	"carelytics/internal/domain"
)

var _ domain.PatientStore = (*DB)(nil)

// Load returns every row of the patients table keyed by id.
func (d *DB) Load(ctx context.Context) (map[string]domain.Record, error) {
	rows, err := d.sql.QueryContext(ctx,
		"SELECT id, name, city, age, gender, height, weight FROM patients;")
	if err != nil {
		return nil, domain.IOError("load patients", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Record)
	for rows.Next() {
		var (
			id string
			r  domain.Record
		)
		if err := rows.Scan(&id, &r.Name, &r.City, &r.Age, &r.Gender, &r.Height, &r.Weight); err != nil {
			return nil, domain.CorruptError("load patients", err)
		}
		out[id] = r
	}
	if err := rows.Err(); err != nil {
		return nil, domain.IOError("load patients", err)
	}
	return out, nil
}

// Save replaces the table contents with patients in a single transaction.
func (d *DB) Save(ctx context.Context, patients map[string]domain.Record) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return domain.IOError("save patients", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM patients;"); err != nil {
		return domain.IOError("save patients", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO patients(id, name, city, age, gender, height, weight) VALUES($1, $2, $3, $4, $5, $6, $7);")
	if err != nil {
		return domain.IOError("save patients", err)
	}
	defer stmt.Close()

	for id, r := range patients {
		if _, err := stmt.ExecContext(ctx, id, r.Name, r.City, r.Age, string(r.Gender), r.Height, r.Weight); err != nil {
			return domain.IOError("save patients", fmt.Errorf("insert %q: %w", id, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.IOError("save patients", err)
	}
	return nil
}
