// Package relay forwards "open patient detail" requests from one browser tab
// to every tab of the same principal.
package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"patientsync/internal/metrics"
	"patientsync/pkg/interfaces"
	"patientsync/pkg/types"
)

type SessionRelay struct {
	notifier interfaces.Notifier
	journal  interfaces.Journal
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New builds a relay. journal and m may be nil.
func New(notifier interfaces.Notifier, journal interfaces.Journal, m *metrics.Metrics, logger *zap.Logger) *SessionRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRelay{
		notifier: notifier,
		journal:  journal,
		metrics:  m,
		logger:   logger.Named("relay"),
	}
}

// SyncOpenPatientDetail tells every session of the caller's principal,
// including the calling one, to open patientID. A caller without a principal
// is logged and ignored. The patient ID is not checked against the store.
func (r *SessionRelay) SyncOpenPatientDetail(ctx context.Context, caller interfaces.Caller, patientID int) error {
	principal := ""
	if caller != nil {
		principal = caller.Principal()
	}
	if principal == "" {
		r.metrics.Relay(metrics.RelayNoPrincipal)
		r.logger.Warn("open patient detail requested without a principal",
			zap.Int("patient_id", patientID))
		return nil
	}

	if err := r.notifier.SendToPrincipal(ctx, principal, types.EventOpenPatientDetail, patientID); err != nil {
		r.metrics.Relay(metrics.RelayFailed)
		r.logger.Error("failed to relay open patient detail",
			zap.String("principal", principal),
			zap.Int("patient_id", patientID),
			zap.Error(err))
		return err
	}
	r.metrics.Relay(metrics.RelayDelivered)

	if r.journal != nil {
		event := interfaces.RelayEvent{Principal: principal, PatientID: patientID, RecordedAt: time.Now().UTC()}
		if err := r.journal.RecordRelay(ctx, event); err != nil {
			r.logger.Warn("failed to journal relay", zap.Int("patient_id", patientID), zap.Error(err))
		}
	}
	return nil
}
