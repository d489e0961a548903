package pgstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AppointmentVerifier reads the booking system's appointments table. The
// table is owned elsewhere and is not created by these migrations; it needs
// id, user_id and status columns.
type AppointmentVerifier struct {
	pool *pgxpool.Pool
}

func NewAppointmentVerifier(pool *pgxpool.Pool) *AppointmentVerifier {
	return &AppointmentVerifier{pool: pool}
}

func (v *AppointmentVerifier) IsCompleted(ctx context.Context, userID, appointmentID uuid.UUID) (bool, error) {
	var ok bool
	err := v.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE id = $1 AND user_id = $2 AND status = 'completed'
		)`, appointmentID, userID).Scan(&ok)
	return ok, err
}
