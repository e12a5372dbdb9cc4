package prescriptions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository stores prescriptions in the relational database.
type PostgresRepository struct {
	db db
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("prescriptions: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db db) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const prescriptionColumns = `id::text, clinic_id, patient_id::text, source_image, notes, fee_cents, rx_date, COALESCE(rendered_image, ''), created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, p *Prescription) error {
	query := `
		INSERT INTO prescriptions (id, clinic_id, patient_id, source_image, notes, fee_cents, rx_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	if err := r.db.QueryRow(ctx, query,
		p.ID,
		p.ClinicID,
		p.PatientID,
		p.SourceImage,
		p.Notes,
		p.FeeCents,
		p.Date,
	).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("prescriptions: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, clinicID, id string) (*Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions WHERE id = $1 AND clinic_id = $2`
	p, err := scanPrescription(r.db.QueryRow(ctx, query, id, clinicID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, fmt.Errorf("prescriptions: select failed: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) ListByPatient(ctx context.Context, clinicID, patientID string) ([]*Prescription, error) {
	query := `
		SELECT ` + prescriptionColumns + `
		FROM prescriptions
		WHERE clinic_id = $1 AND patient_id = $2
		ORDER BY rx_date DESC, created_at DESC
	`
	rows, err := r.db.Query(ctx, query, clinicID, patientID)
	if err != nil {
		return nil, fmt.Errorf("prescriptions: list failed: %w", err)
	}
	defer rows.Close()

	out := []*Prescription{}
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, fmt.Errorf("prescriptions: scan failed: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("prescriptions: list failed: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Update(ctx context.Context, p *Prescription) error {
	query := `
		UPDATE prescriptions
		SET source_image = $3, notes = $4, fee_cents = $5, updated_at = now()
		WHERE id = $1 AND clinic_id = $2
		RETURNING updated_at
	`
	if err := r.db.QueryRow(ctx, query, p.ID, p.ClinicID, p.SourceImage, p.Notes, p.FeeCents).Scan(&p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPrescriptionNotFound
		}
		return fmt.Errorf("prescriptions: update failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetRenderedImage(ctx context.Context, clinicID, id, ref string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE prescriptions SET rendered_image = $3, updated_at = now() WHERE id = $1 AND clinic_id = $2`,
		id, clinicID, ref)
	if err != nil {
		return fmt.Errorf("prescriptions: set rendered image failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPrescriptionNotFound
	}
	return nil
}

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	if err := row.Scan(
		&p.ID,
		&p.ClinicID,
		&p.PatientID,
		&p.SourceImage,
		&p.Notes,
		&p.FeeCents,
		&p.Date,
		&p.RenderedImage,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
