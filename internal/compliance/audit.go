// Package compliance records who touched patient and prescription records.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-rx/internal/tenancy"
)

// AuditEventType represents the type of compliance event.
type AuditEventType string

const (
	// EventPatientCreated is logged when a patient record is registered.
	EventPatientCreated AuditEventType = "records.patient_created"
	// EventPrescriptionCreated is logged when a prescription is saved.
	EventPrescriptionCreated AuditEventType = "records.prescription_created"
	// EventPrescriptionUpdated is logged when a saved prescription is edited.
	EventPrescriptionUpdated AuditEventType = "records.prescription_updated"
	// EventPrescriptionRendered is logged when a prescription is exported.
	EventPrescriptionRendered AuditEventType = "records.prescription_rendered"
)

// AuditEvent represents an immutable compliance audit record.
type AuditEvent struct {
	ID             string          `json:"id"`
	EventType      AuditEventType  `json:"event_type"`
	ClinicID       string          `json:"clinic_id"`
	ActorRole      string          `json:"actor_role,omitempty"`
	PatientID      string          `json:"patient_id,omitempty"`
	PrescriptionID string          `json:"prescription_id,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details.
type AuditDetails struct {
	// For renders
	Target   string `json:"target,omitempty"`
	Filename string `json:"filename,omitempty"`

	// For updates
	Fields []string `json:"fields,omitempty"`
}

// AuditService handles compliance audit logging.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records a compliance audit event. The actor role is taken from
// ctx when the event does not carry one.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.ActorRole == "" {
		if role, ok := tenancy.RoleFromContext(ctx); ok {
			event.ActorRole = string(role)
		}
	}

	query := `
		INSERT INTO compliance_audit_events (
			id, event_type, clinic_id, actor_role, patient_id,
			prescription_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.ClinicID,
		nullString(event.ActorRole),
		nullString(event.PatientID),
		nullString(event.PrescriptionID),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}

	return nil
}

// LogPatientCreated logs a new patient registration.
func (s *AuditService) LogPatientCreated(ctx context.Context, clinicID, patientID string) error {
	return s.LogEvent(ctx, AuditEvent{
		EventType: EventPatientCreated,
		ClinicID:  clinicID,
		PatientID: patientID,
	})
}

// LogPrescriptionCreated logs a saved prescription.
func (s *AuditService) LogPrescriptionCreated(ctx context.Context, clinicID, patientID, prescriptionID string) error {
	return s.LogEvent(ctx, AuditEvent{
		EventType:      EventPrescriptionCreated,
		ClinicID:       clinicID,
		PatientID:      patientID,
		PrescriptionID: prescriptionID,
	})
}

// LogPrescriptionUpdated logs an edit and the fields it touched.
func (s *AuditService) LogPrescriptionUpdated(ctx context.Context, clinicID, patientID, prescriptionID string, fields []string) error {
	detailsJSON, _ := json.Marshal(AuditDetails{Fields: fields})

	return s.LogEvent(ctx, AuditEvent{
		EventType:      EventPrescriptionUpdated,
		ClinicID:       clinicID,
		PatientID:      patientID,
		PrescriptionID: prescriptionID,
		Details:        detailsJSON,
	})
}

// LogPrescriptionRendered logs an export to image, document or print page.
func (s *AuditService) LogPrescriptionRendered(ctx context.Context, clinicID, patientID, prescriptionID, target, filename string) error {
	detailsJSON, _ := json.Marshal(AuditDetails{Target: target, Filename: filename})

	return s.LogEvent(ctx, AuditEvent{
		EventType:      EventPrescriptionRendered,
		ClinicID:       clinicID,
		PatientID:      patientID,
		PrescriptionID: prescriptionID,
		Details:        detailsJSON,
	})
}

// QueryEvents retrieves audit events with filters.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, clinic_id, actor_role, patient_id,
			   prescription_id, details, created_at
		FROM compliance_audit_events
		WHERE clinic_id = $1
	`
	args := []interface{}{filter.ClinicID}
	argIdx := 2

	if filter.PatientID != "" {
		query += fmt.Sprintf(" AND patient_id = $%d", argIdx)
		args = append(args, filter.PatientID)
		argIdx++
	}
	if filter.PrescriptionID != "" {
		query += fmt.Sprintf(" AND prescription_id = $%d", argIdx)
		args = append(args, filter.PrescriptionID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var role, patientID, rxID sql.NullString
		var details []byte
		err := rows.Scan(
			&e.ID, &e.EventType, &e.ClinicID, &role, &patientID,
			&rxID, &details, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.ActorRole = role.String
		e.PatientID = patientID.String
		e.PrescriptionID = rxID.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: failed to read audit events: %w", err)
	}

	return events, nil
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	ClinicID       string
	PatientID      string
	PrescriptionID string
	EventType      AuditEventType
	StartTime      time.Time
	EndTime        time.Time
	Limit          int
	Offset         int
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
