package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/therapy-scheduler/internal/events"
)

// MemoryStore is a Store kept in process memory. Update transactions are
// fully serialized and work on a copy that replaces the committed state only
// on success, which gives the same all-or-nothing behaviour as Postgres. It
// backs local development (no DATABASE_URL) and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
	now   func() time.Time
}

type memoryState struct {
	rules  map[string]Rule
	appts  map[string]Appointment
	outbox []events.Envelope
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		rules:  make(map[string]Rule, len(s.rules)),
		appts:  make(map[string]Appointment, len(s.appts)),
		outbox: append([]events.Envelope(nil), s.outbox...),
	}
	for id, r := range s.rules {
		c.rules[id] = r
	}
	for id, a := range s.appts {
		c.appts[id] = a
	}
	return c
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memoryState{
			rules: make(map[string]Rule),
			appts: make(map[string]Appointment),
		},
		now: time.Now,
	}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "begin", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memoryTx{state: &work, writable: true, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "commit", Err: err}
	}
	s.state = work
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "begin", Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memoryTx{state: &s.state, now: s.now})
}

// FetchPending implements events.Source.
func (s *MemoryStore) FetchPending(ctx context.Context, limit int32) ([]events.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []events.Envelope
	for _, env := range s.state.outbox {
		out = append(out, env)
		if limit > 0 && int32(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

// MarkDelivered implements events.Source.
func (s *MemoryStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.outbox {
		if s.state.outbox[i].ID == id {
			// Delivered entries are removed.
			s.state.outbox = append(s.state.outbox[:i:i], s.state.outbox[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type memoryTx struct {
	state    *memoryState
	writable bool
	now      func() time.Time
}

func (t *memoryTx) checkWritable() error {
	if !t.writable {
		return ErrReadOnly
	}
	return nil
}

func (t *memoryTx) LockTherapist(ctx context.Context, therapistID string) error {
	return nil
}

func (t *memoryTx) ListRules(ctx context.Context, therapistID string) ([]Rule, error) {
	var out []Rule
	for _, r := range t.state.rules {
		if r.TherapistID == therapistID {
			out = append(out, r)
		}
	}
	SortRules(out)
	return out, nil
}

func (t *memoryTx) ListRulesForDay(ctx context.Context, therapistID string, day Weekday) ([]Rule, error) {
	var out []Rule
	for _, r := range t.state.rules {
		if r.TherapistID == therapistID && r.DayOfWeek == day {
			out = append(out, r)
		}
	}
	SortRules(out)
	return out, nil
}

func (t *memoryTx) GetRule(ctx context.Context, id string) (Rule, error) {
	r, ok := t.state.rules[id]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	return r, nil
}

func (t *memoryTx) InsertRule(ctx context.Context, rule Rule) (Rule, error) {
	if err := t.checkWritable(); err != nil {
		return Rule{}, err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := t.now().UTC()
	rule.CreatedAt, rule.UpdatedAt = now, now
	t.state.rules[rule.ID] = rule
	return rule, nil
}

func (t *memoryTx) UpdateRule(ctx context.Context, rule Rule) (Rule, error) {
	if err := t.checkWritable(); err != nil {
		return Rule{}, err
	}
	existing, ok := t.state.rules[rule.ID]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	rule.TherapistID = existing.TherapistID
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = t.now().UTC()
	t.state.rules[rule.ID] = rule
	return rule, nil
}

func (t *memoryTx) DeleteRule(ctx context.Context, id string) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if _, ok := t.state.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(t.state.rules, id)
	return nil
}

func (t *memoryTx) ListActiveAppointments(ctx context.Context, therapistID string, from, to time.Time) ([]Appointment, error) {
	var out []Appointment
	for _, a := range t.state.appts {
		if a.TherapistID == therapistID && a.Status.Active() && a.Overlaps(from, to) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (t *memoryTx) ListTherapistAppointments(ctx context.Context, therapistID string, from, to time.Time) ([]Appointment, error) {
	var out []Appointment
	for _, a := range t.state.appts {
		if a.TherapistID != therapistID {
			continue
		}
		if a.ScheduledTime.Before(from) || !a.ScheduledTime.Before(to) {
			continue
		}
		out = append(out, a)
	}
	sortAppointments(out)
	return out, nil
}

func (t *memoryTx) ListPatientAppointments(ctx context.Context, patientID string) ([]Appointment, error) {
	var out []Appointment
	for _, a := range t.state.appts {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (t *memoryTx) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	a, ok := t.state.appts[id]
	if !ok {
		return Appointment{}, ErrAppointmentNotFound
	}
	return a, nil
}

func (t *memoryTx) InsertAppointment(ctx context.Context, appt Appointment) (Appointment, error) {
	if err := t.checkWritable(); err != nil {
		return Appointment{}, err
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	now := t.now().UTC()
	appt.CreatedAt, appt.UpdatedAt = now, now
	t.state.appts[appt.ID] = appt
	return appt, nil
}

func (t *memoryTx) UpdateAppointmentStatus(ctx context.Context, id string, status AppointmentStatus, reason string, at time.Time) (Appointment, error) {
	if err := t.checkWritable(); err != nil {
		return Appointment{}, err
	}
	a, ok := t.state.appts[id]
	if !ok {
		return Appointment{}, ErrAppointmentNotFound
	}
	a.Status = status
	if reason != "" {
		a.CancellationReason = reason
	}
	a.UpdatedAt = at.UTC()
	t.state.appts[id] = a
	return a, nil
}

func (t *memoryTx) AppendEvent(ctx context.Context, env events.Envelope) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	t.state.outbox = append(t.state.outbox, env)
	return nil
}

func sortAppointments(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if !appts[i].ScheduledTime.Equal(appts[j].ScheduledTime) {
			return appts[i].ScheduledTime.Before(appts[j].ScheduledTime)
		}
		return appts[i].ID < appts[j].ID
	})
}
