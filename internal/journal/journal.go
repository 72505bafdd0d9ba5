package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"patientsync/pkg/interfaces"
)

// Journal is a sqlite-backed audit trail of alarm flips and relayed
// detail-open requests. Reads run concurrently; writes go through a single
// writer goroutine.
type Journal struct {
	db       *sql.DB
	cfg      Config
	logger   *zap.Logger
	writes   chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
}

type writeOperation struct {
	ctx    context.Context
	exec   func(ctx context.Context, db *sql.DB) error
	result chan error
}

var _ interfaces.Journal = (*Journal)(nil)

// Open opens the database at cfg.Path, applies migrations and starts the
// writer.
func Open(cfg Config, logger *zap.Logger) (*Journal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dsn := cfg.Path
	if !cfg.inMemory() {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// Every connection to ":memory:" is its own database.
	if cfg.inMemory() {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(10 * time.Minute)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := validateSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db, cfg, logger), nil
}

// New wraps an already migrated database and starts the writer.
func New(db *sql.DB, cfg Config, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = DefaultConfig().QueueSize
	}

	j := &Journal{
		db:       db,
		cfg:      cfg,
		logger:   logger.Named("journal"),
		writes:   make(chan writeOperation, queue),
		shutdown: make(chan struct{}),
	}

	j.wg.Add(1)
	go j.writeLoop()

	return j
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()

	for {
		select {
		case op := <-j.writes:
			err := op.exec(op.ctx, j.db)
			if err != nil && op.ctx.Err() == nil {
				j.logger.Warn("journal write failed, retrying",
					zap.Duration("retry_delay", j.cfg.RetryDelay),
					zap.Error(err))
				if j.wait(op.ctx) {
					err = op.exec(op.ctx, j.db)
				}
				if err != nil {
					j.logger.Error("journal write failed after retry", zap.Error(err))
				}
			}
			op.result <- err

		case <-j.shutdown:
			j.logger.Debug("journal write loop shutting down")
			return
		}
	}
}

// wait sleeps for the retry delay and reports whether the retry should run.
func (j *Journal) wait(ctx context.Context) bool {
	if j.cfg.RetryDelay <= 0 {
		return true
	}
	timer := time.NewTimer(j.cfg.RetryDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-j.shutdown:
		return false
	}
}

func (j *Journal) executeWrite(ctx context.Context, exec func(ctx context.Context, db *sql.DB) error) error {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrJournalClosed
	}
	j.mu.RUnlock()

	result := make(chan error, 1)
	timeout := time.NewTimer(j.cfg.WriteTimeout)
	defer timeout.Stop()

	select {
	case j.writes <- writeOperation{ctx: ctx, exec: exec, result: result}:
	case <-timeout.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-j.shutdown:
		return ErrJournalClosed
	}

	select {
	case err := <-result:
		return err
	case <-timeout.C:
		return ErrWriteTimeout
	case <-j.shutdown:
		return ErrJournalClosed
	}
}

// RecordAlarm appends one alarm flag write.
func (j *Journal) RecordAlarm(ctx context.Context, event interfaces.AlarmEvent) error {
	recordedAt := stamp(event.RecordedAt)
	return j.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO alarm_events (patient_id, parameter_id, alarm, recorded_at) VALUES (?, ?, ?, ?)`,
			event.PatientID, event.ParameterID, event.Alarm, recordedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert alarm event: %w", err)
		}
		return nil
	})
}

// RecordRelay appends one relayed detail-open request.
func (j *Journal) RecordRelay(ctx context.Context, event interfaces.RelayEvent) error {
	recordedAt := stamp(event.RecordedAt)
	return j.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO relay_events (principal, patient_id, recorded_at) VALUES (?, ?, ?)`,
			event.Principal, event.PatientID, recordedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert relay event: %w", err)
		}
		return nil
	})
}

// RecentAlarms returns the newest alarm events for a patient, newest first.
func (j *Journal) RecentAlarms(ctx context.Context, patientID int, limit int) ([]interfaces.AlarmEvent, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	j.mu.RLock()
	closed := j.closed
	j.mu.RUnlock()
	if closed {
		return nil, ErrJournalClosed
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT patient_id, parameter_id, alarm, recorded_at
		FROM alarm_events
		WHERE patient_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alarm events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]interfaces.AlarmEvent, 0, limit)
	for rows.Next() {
		var e interfaces.AlarmEvent
		if err := rows.Scan(&e.PatientID, &e.ParameterID, &e.Alarm, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alarm event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alarm events: %w", err)
	}
	return events, nil
}

// HealthCheck pings the database and reads from the alarm table.
func (j *Journal) HealthCheck(ctx context.Context) error {
	j.mu.RLock()
	closed := j.closed
	j.mu.RUnlock()
	if closed {
		return ErrJournalClosed
	}

	if err := j.db.PingContext(ctx); err != nil {
		return fmt.Errorf("journal ping failed: %w", err)
	}
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alarm_events").Scan(&n); err != nil {
		return fmt.Errorf("journal read test failed: %w", err)
	}
	return nil
}

// Close stops the writer and closes the database. It is safe to call twice.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	close(j.shutdown)
	j.wg.Wait()

	if err := j.db.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
