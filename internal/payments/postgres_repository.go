package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository persists payments with pgx.
type PostgresRepository struct {
	db db
}

// NewPostgresRepository creates a repository backed by pgx.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for tests.
func NewPostgresRepositoryWithDB(db db) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const paymentColumns = `id, clinic_id, prescription_id, amount_cents, method, status, reference, paid_at, created_at`

// Create records a payment; paid payments are stamped with paid_at.
func (r *PostgresRepository) Create(ctx context.Context, req *CreatePaymentRequest) (*Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rxID, err := uuid.Parse(req.PrescriptionID)
	if err != nil {
		return nil, fmt.Errorf("payments: invalid prescription id: %w", err)
	}
	query := `
		INSERT INTO payments (id, clinic_id, prescription_id, amount_cents, method, status, reference, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CASE WHEN $6 = 'paid' THEN now() END)
		RETURNING ` + paymentColumns
	p, err := scanPayment(r.db.QueryRow(ctx, query,
		toPGUUID(uuid.New()),
		req.ClinicID,
		toPGUUID(rxID),
		req.AmountCents,
		string(req.Method),
		string(req.Status),
		pgtype.Text{String: req.Reference, Valid: req.Reference != ""},
	))
	if err != nil {
		return nil, fmt.Errorf("payments: failed to insert payment: %w", err)
	}
	return p, nil
}

// ListByPrescription returns payments oldest first.
func (r *PostgresRepository) ListByPrescription(ctx context.Context, clinicID, prescriptionID string) ([]*Payment, error) {
	rxID, err := uuid.Parse(prescriptionID)
	if err != nil {
		return []*Payment{}, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE clinic_id = $1 AND prescription_id = $2 ORDER BY created_at`,
		clinicID, toPGUUID(rxID))
	if err != nil {
		return nil, fmt.Errorf("payments: list: %w", err)
	}
	defer rows.Close()

	out := []*Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("payments: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payments: list: %w", err)
	}
	return out, nil
}

// UpdateStatus moves a payment along its lifecycle. The update only applies
// if the status has not changed since it was read.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, clinicID, id string, status Status) (*Payment, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrPaymentNotFound
	}
	var current string
	if err := r.db.QueryRow(ctx,
		`SELECT status FROM payments WHERE id = $1 AND clinic_id = $2`,
		toPGUUID(pid), clinicID,
	).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payments: read status: %w", err)
	}
	if !CanTransition(Status(current), status) {
		return nil, ErrInvalidTransition
	}
	query := `
		UPDATE payments
		SET status = $3, paid_at = CASE WHEN $3 = 'paid' THEN now() ELSE paid_at END
		WHERE id = $1 AND clinic_id = $2 AND status = $4
		RETURNING ` + paymentColumns
	p, err := scanPayment(r.db.QueryRow(ctx, query, toPGUUID(pid), clinicID, string(status), current))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("payments: update status: %w", err)
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p         Payment
		id, rxID  pgtype.UUID
		method    string
		status    string
		reference pgtype.Text
		paidAt    pgtype.Timestamptz
	)
	if err := row.Scan(&id, &p.ClinicID, &rxID, &p.AmountCents, &method, &status, &reference, &paidAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ID = uuid.UUID(id.Bytes).String()
	p.PrescriptionID = uuid.UUID(rxID.Bytes).String()
	p.Method = Method(method)
	p.Status = Status(status)
	p.Reference = reference.String
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	return &p, nil
}

func toPGUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
