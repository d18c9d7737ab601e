package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/therapy-scheduler/internal/events"
	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

// Querier is the statement surface shared by pgx pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the subset of *pgxpool.Pool the store needs.
type PgxPool interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore persists scheduling state in Postgres. Writers take a
// per-therapist advisory lock and run at SERIALIZABLE; serialization
// failures and exclusion-constraint violations are retried.
type PostgresStore struct {
	pool       PgxPool
	maxRetries int
	logger     *logging.Logger
}

// NewPostgresStore wraps a pgx pool. maxRetries bounds how many times a
// failed serializable transaction is re-run.
func NewPostgresStore(pool *pgxpool.Pool, maxRetries int, logger *logging.Logger) *PostgresStore {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return newPostgresStoreWithPool(pool, maxRetries, logger)
}

func newPostgresStoreWithPool(pool PgxPool, maxRetries int, logger *logging.Logger) *PostgresStore {
	if logger == nil {
		logger = logging.Default()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &PostgresStore{pool: pool, maxRetries: maxRetries, logger: logger}
}

func (s *PostgresStore) Update(ctx context.Context, fn func(Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err = s.run(ctx, opts, true, fn)
		if err == nil || !isRetryable(err) || ctx.Err() != nil {
			break
		}
		s.logger.Warn("retrying scheduling transaction", "attempt", attempt+1, "error", err)
	}
	if isConstraintViolation(err) {
		return ErrConcurrentChange
	}
	return storeErr("update", err)
}

func (s *PostgresStore) View(ctx context.Context, fn func(Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return storeErr("view", s.run(ctx, opts, false, fn))
}

func (s *PostgresStore) run(ctx context.Context, opts pgx.TxOptions, writable bool, fn func(Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return &StoreError{Op: "begin", Err: err}
	}
	if err := fn(&pgTx{q: tx, writable: writable}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return &StoreError{Op: "commit", Err: err}
	}
	return nil
}

// isRetryable matches serialization failures, deadlocks and the unique or
// exclusion violations a concurrent writer can cause. On retry the conflict
// surfaces as a domain error from the service checks instead.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "23P01", "23505":
		return true
	}
	return false
}

func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23P01" || pgErr.Code == "23505")
}

type pgTx struct {
	q        Querier
	writable bool
}

func (t *pgTx) checkWritable() error {
	if !t.writable {
		return ErrReadOnly
	}
	return nil
}

func (t *pgTx) LockTherapist(ctx context.Context, therapistID string) error {
	if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, therapistID); err != nil {
		return storeErr("lock therapist", err)
	}
	return nil
}

const ruleColumns = `id::text, therapist_id, day_of_week,
	to_char(start_time, 'HH24:MI:SS'), to_char(end_time, 'HH24:MI:SS'),
	is_recurring, created_at, updated_at`

const weekOrder = `array_position(ARRAY['monday','tuesday','wednesday','thursday','friday','saturday','sunday'], day_of_week)`

func scanRule(row pgx.Row) (Rule, error) {
	var (
		r          Rule
		day        string
		start, end string
	)
	if err := row.Scan(&r.ID, &r.TherapistID, &day, &start, &end, &r.IsRecurring, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Rule{}, err
	}
	r.DayOfWeek = Weekday(day)
	var err error
	if r.StartTime, err = ParseTimeOfDay(start); err != nil {
		return Rule{}, fmt.Errorf("rule %s start_time: %w", r.ID, err)
	}
	if r.EndTime, err = ParseTimeOfDay(end); err != nil {
		return Rule{}, fmt.Errorf("rule %s end_time: %w", r.ID, err)
	}
	return r, nil
}

func (t *pgTx) queryRules(ctx context.Context, op, query string, args ...any) ([]Rule, error) {
	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return rules, nil
}

func (t *pgTx) ListRules(ctx context.Context, therapistID string) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + `
		FROM availability_rules
		WHERE therapist_id = $1
		ORDER BY ` + weekOrder + `, start_time`
	return t.queryRules(ctx, "list rules", query, therapistID)
}

func (t *pgTx) ListRulesForDay(ctx context.Context, therapistID string, day Weekday) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + `
		FROM availability_rules
		WHERE therapist_id = $1 AND day_of_week = $2
		ORDER BY start_time`
	return t.queryRules(ctx, "list rules for day", query, therapistID, string(day))
}

func (t *pgTx) GetRule(ctx context.Context, id string) (Rule, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Rule{}, ErrRuleNotFound
	}
	query := `SELECT ` + ruleColumns + ` FROM availability_rules WHERE id = $1`
	r, err := scanRule(t.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrRuleNotFound
	}
	if err != nil {
		return Rule{}, storeErr("get rule", err)
	}
	return r, nil
}

func (t *pgTx) InsertRule(ctx context.Context, rule Rule) (Rule, error) {
	if err := t.checkWritable(); err != nil {
		return Rule{}, err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	query := `
		INSERT INTO availability_rules (id, therapist_id, day_of_week, start_time, end_time, is_recurring)
		VALUES ($1, $2, $3, $4::time, $5::time, $6)
		RETURNING created_at, updated_at
	`
	if err := t.q.QueryRow(ctx, query,
		rule.ID,
		rule.TherapistID,
		string(rule.DayOfWeek),
		rule.StartTime.String(),
		rule.EndTime.String(),
		rule.IsRecurring,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return Rule{}, storeErr("insert rule", err)
	}
	return rule, nil
}

func (t *pgTx) UpdateRule(ctx context.Context, rule Rule) (Rule, error) {
	if err := t.checkWritable(); err != nil {
		return Rule{}, err
	}
	if _, err := uuid.Parse(rule.ID); err != nil {
		return Rule{}, ErrRuleNotFound
	}
	query := `
		UPDATE availability_rules
		SET day_of_week = $2, start_time = $3::time, end_time = $4::time, is_recurring = $5, updated_at = now()
		WHERE id = $1
		RETURNING therapist_id, created_at, updated_at
	`
	err := t.q.QueryRow(ctx, query,
		rule.ID,
		string(rule.DayOfWeek),
		rule.StartTime.String(),
		rule.EndTime.String(),
		rule.IsRecurring,
	).Scan(&rule.TherapistID, &rule.CreatedAt, &rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrRuleNotFound
	}
	if err != nil {
		return Rule{}, storeErr("update rule", err)
	}
	return rule, nil
}

func (t *pgTx) DeleteRule(ctx context.Context, id string) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrRuleNotFound
	}
	ct, err := t.q.Exec(ctx, `DELETE FROM availability_rules WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete rule", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

const appointmentColumns = `id::text, patient_id, therapist_id, scheduled_time, duration_minutes,
	status, notes, therapy_type, cancellation_reason, created_at, updated_at`

func scanAppointment(row pgx.Row) (Appointment, error) {
	var (
		a      Appointment
		status string
	)
	if err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.TherapistID,
		&a.ScheduledTime,
		&a.DurationMinutes,
		&status,
		&a.Notes,
		&a.TherapyType,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return Appointment{}, err
	}
	a.Status = AppointmentStatus(status)
	return a, nil
}

func (t *pgTx) queryAppointments(ctx context.Context, op, query string, args ...any) ([]Appointment, error) {
	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		appts = append(appts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return appts, nil
}

func (t *pgTx) ListActiveAppointments(ctx context.Context, therapistID string, from, to time.Time) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE therapist_id = $1
		  AND status IN ('scheduled', 'confirmed')
		  AND scheduled_time < $3
		  AND scheduled_time + make_interval(mins => duration_minutes) > $2
		ORDER BY scheduled_time, id`
	return t.queryAppointments(ctx, "list active appointments", query, therapistID, from, to)
}

func (t *pgTx) ListTherapistAppointments(ctx context.Context, therapistID string, from, to time.Time) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE therapist_id = $1 AND scheduled_time >= $2 AND scheduled_time < $3
		ORDER BY scheduled_time, id`
	return t.queryAppointments(ctx, "list therapist appointments", query, therapistID, from, to)
}

func (t *pgTx) ListPatientAppointments(ctx context.Context, patientID string) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_time, id`
	return t.queryAppointments(ctx, "list patient appointments", query, patientID)
}

func (t *pgTx) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Appointment{}, ErrAppointmentNotFound
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	a, err := scanAppointment(t.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrAppointmentNotFound
	}
	if err != nil {
		return Appointment{}, storeErr("get appointment", err)
	}
	return a, nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, appt Appointment) (Appointment, error) {
	if err := t.checkWritable(); err != nil {
		return Appointment{}, err
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	query := `
		INSERT INTO appointments (id, patient_id, therapist_id, scheduled_time, duration_minutes, status, notes, therapy_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	if err := t.q.QueryRow(ctx, query,
		appt.ID,
		appt.PatientID,
		appt.TherapistID,
		appt.ScheduledTime.UTC(),
		appt.DurationMinutes,
		string(appt.Status),
		appt.Notes,
		appt.TherapyType,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return Appointment{}, storeErr("insert appointment", err)
	}
	return appt, nil
}

func (t *pgTx) UpdateAppointmentStatus(ctx context.Context, id string, status AppointmentStatus, reason string, at time.Time) (Appointment, error) {
	if err := t.checkWritable(); err != nil {
		return Appointment{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return Appointment{}, ErrAppointmentNotFound
	}
	query := `
		UPDATE appointments
		SET status = $2,
		    cancellation_reason = COALESCE(NULLIF($3, ''), cancellation_reason),
		    updated_at = $4
		WHERE id = $1
		RETURNING ` + appointmentColumns
	a, err := scanAppointment(t.q.QueryRow(ctx, query, id, string(status), reason, at.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrAppointmentNotFound
	}
	if err != nil {
		return Appointment{}, storeErr("update appointment status", err)
	}
	return a, nil
}

func (t *pgTx) AppendEvent(ctx context.Context, env events.Envelope) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	return storeErr("append event", events.Append(ctx, t.q, env))
}
