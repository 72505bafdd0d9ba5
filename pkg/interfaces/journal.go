package interfaces

import (
	"context"
	"time"
)

// AlarmEvent is one alarm flag write made by the alarm mutator.
type AlarmEvent struct {
	PatientID   int       `json:"patientId"`
	ParameterID int       `json:"parameterId"`
	Alarm       bool      `json:"alarm"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// RelayEvent is one detail-open request relayed to a principal's sessions.
type RelayEvent struct {
	Principal  string    `json:"principal"`
	PatientID  int       `json:"patientId"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Journal is an append-only audit trail. It never feeds back into the store.
type Journal interface {
	RecordAlarm(ctx context.Context, event AlarmEvent) error
	RecordRelay(ctx context.Context, event RelayEvent) error
	RecentAlarms(ctx context.Context, patientID int, limit int) ([]AlarmEvent, error)
	HealthCheck(ctx context.Context) error
	Close() error
}
