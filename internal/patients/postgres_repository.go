package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// db is the subset of pgxpool.Pool the repository needs.
type db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository stores patients in the relational database.
type PostgresRepository struct {
	db db
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db db) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const patientColumns = `id, clinic_id, first_name, last_name, mr_number, gender, date_of_birth, phone, created_at`

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreatePatientRequest) (*Patient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	dob, _ := req.ParsedDateOfBirth()

	id := uuid.New()
	query := `
		INSERT INTO patients (id, clinic_id, first_name, last_name, mr_number, gender, date_of_birth, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		id,
		req.ClinicID,
		req.FirstName,
		req.LastName,
		req.MRNumber,
		req.Gender,
		dob,
		req.Phone,
	).Scan(&createdAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateMRNumber
		}
		return nil, fmt.Errorf("patients: insert failed: %w", err)
	}

	return &Patient{
		ID:          id.String(),
		ClinicID:    req.ClinicID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		MRNumber:    req.MRNumber,
		Gender:      req.Gender,
		DateOfBirth: dob,
		Phone:       req.Phone,
		CreatedAt:   createdAt,
	}, nil
}

// GetByID fetches a patient scoped to the clinic.
func (r *PostgresRepository) GetByID(ctx context.Context, clinicID, id string) (*Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1 AND clinic_id = $2`
	patient, err := scanPatient(r.db.QueryRow(ctx, query, id, clinicID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: select failed: %w", err)
	}
	return patient, nil
}

// List returns the clinic's patients, newest first.
func (r *PostgresRepository) List(ctx context.Context, clinicID string, filter ListFilter) ([]*Patient, error) {
	filter = filter.normalized()
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE clinic_id = $1
		  AND ($2 = '' OR first_name ILIKE '%' || $2 || '%' OR last_name ILIKE '%' || $2 || '%' OR mr_number ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, clinicID, filter.Search, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("patients: list failed: %w", err)
	}
	defer rows.Close()

	out := []*Patient{}
	for rows.Next() {
		patient, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("patients: scan failed: %w", err)
		}
		out = append(out, patient)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patients: list failed: %w", err)
	}
	return out, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p      Patient
		id     uuid.UUID
		gender *string
		phone  *string
	)
	if err := row.Scan(
		&id,
		&p.ClinicID,
		&p.FirstName,
		&p.LastName,
		&p.MRNumber,
		&gender,
		&p.DateOfBirth,
		&phone,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}
	p.ID = id.String()
	if gender != nil {
		p.Gender = *gender
	}
	if phone != nil {
		p.Phone = *phone
	}
	return &p, nil
}
