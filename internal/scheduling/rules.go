package scheduling

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/therapy-scheduler/internal/identity"
)

// RuleService manages therapists' weekly availability. Every mutation runs
// in one store transaction holding the therapist lock, so the overlap check
// always sees every previously committed rule.
type RuleService struct {
	store Store
	opts  Options
}

func NewRuleService(store Store, opts Options) *RuleService {
	if store == nil {
		panic("scheduling: store required")
	}
	return &RuleService{store: store, opts: opts.withDefaults()}
}

// ListRules returns therapistID's rules ordered by weekday (Monday first),
// then start time.
func (s *RuleService) ListRules(ctx context.Context, therapistID string) ([]Rule, error) {
	therapistID = strings.TrimSpace(therapistID)
	if therapistID == "" {
		return nil, invalid("therapistId", "therapist id is required")
	}
	var rules []Rule
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		rules, err = tx.ListRules(ctx, therapistID)
		return err
	})
	if err != nil {
		logFailure(s.opts.Logger, "list availability failed", err, "therapist_id", therapistID)
		return nil, err
	}
	if rules == nil {
		rules = []Rule{}
	}
	return rules, nil
}

// ManageRules is ListRules for the owning therapist's management view.
func (s *RuleService) ManageRules(ctx context.Context, therapistID string) ([]Rule, error) {
	if !identity.CanActAsTherapist(ctx, therapistID) {
		return nil, ErrRuleNotFound
	}
	return s.ListRules(ctx, therapistID)
}

// AddRule stores a new rule after checking its range and that it does not
// overlap any rule the therapist already has on that day.
func (s *RuleService) AddRule(ctx context.Context, in RuleInput) (Rule, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.add_rule")
	defer span.End()
	span.SetAttributes(
		attribute.String("therapy.therapist_id", in.TherapistID),
		attribute.String("therapy.day_of_week", string(in.DayOfWeek)),
	)

	created, err := s.addRule(ctx, in)
	s.finish(span, "create", err, "therapist_id", in.TherapistID, "day_of_week", in.DayOfWeek)
	if err != nil {
		return Rule{}, err
	}
	s.opts.Logger.Info("availability rule created",
		"availability_id", created.ID,
		"therapist_id", created.TherapistID,
		"day_of_week", created.DayOfWeek,
		"start_time", created.StartTime,
		"end_time", created.EndTime,
	)
	return created, nil
}

func (s *RuleService) addRule(ctx context.Context, in RuleInput) (Rule, error) {
	in.TherapistID = strings.TrimSpace(in.TherapistID)
	if in.TherapistID == "" {
		return Rule{}, invalid("therapistId", "therapist id is required")
	}
	if !identity.CanActAsTherapist(ctx, in.TherapistID) {
		return Rule{}, ErrRuleNotFound
	}
	candidate := Candidate{DayOfWeek: in.DayOfWeek, StartTime: in.StartTime, EndTime: in.EndTime}
	if err := ValidateCandidate(candidate, nil, ""); err != nil {
		return Rule{}, err
	}

	var created Rule
	err := s.store.Update(ctx, func(tx Tx) error {
		if err := tx.LockTherapist(ctx, in.TherapistID); err != nil {
			return err
		}
		existing, err := tx.ListRulesForDay(ctx, in.TherapistID, in.DayOfWeek)
		if err != nil {
			return err
		}
		if err := ValidateCandidate(candidate, existing, ""); err != nil {
			return err
		}
		created, err = tx.InsertRule(ctx, Rule{
			TherapistID: in.TherapistID,
			DayOfWeek:   in.DayOfWeek,
			StartTime:   in.StartTime,
			EndTime:     in.EndTime,
			IsRecurring: in.IsRecurring,
		})
		if err != nil {
			return err
		}
		return emit(ctx, tx, s.opts.Now, created.TherapistID, ruleEvent(ruleCreated, created))
	})
	return created, err
}

// UpdateRule applies patch to rule id. The edited rule is excluded from the
// overlap check so it cannot collide with its previous self.
func (s *RuleService) UpdateRule(ctx context.Context, id string, patch RulePatch) (Rule, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.update_rule")
	defer span.End()
	span.SetAttributes(attribute.String("therapy.availability_id", id))

	var updated Rule
	err := s.store.Update(ctx, func(tx Tx) error {
		current, err := s.ownedRule(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := tx.LockTherapist(ctx, current.TherapistID); err != nil {
			return err
		}
		next := patch.apply(current)
		existing, err := tx.ListRulesForDay(ctx, next.TherapistID, next.DayOfWeek)
		if err != nil {
			return err
		}
		if err := ValidateCandidate(next.candidate(), existing, current.ID); err != nil {
			return err
		}
		updated, err = tx.UpdateRule(ctx, next)
		if err != nil {
			return err
		}
		return emit(ctx, tx, s.opts.Now, updated.TherapistID, ruleEvent(ruleUpdated, updated))
	})
	s.finish(span, "update", err, "availability_id", id)
	if err != nil {
		return Rule{}, err
	}
	s.opts.Logger.Info("availability rule updated", "availability_id", updated.ID, "therapist_id", updated.TherapistID)
	return updated, nil
}

// DeleteRule removes rule id. Existing appointments are left untouched.
func (s *RuleService) DeleteRule(ctx context.Context, id string) error {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.delete_rule")
	defer span.End()
	span.SetAttributes(attribute.String("therapy.availability_id", id))

	err := s.store.Update(ctx, func(tx Tx) error {
		current, err := s.ownedRule(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := tx.LockTherapist(ctx, current.TherapistID); err != nil {
			return err
		}
		if err := tx.DeleteRule(ctx, current.ID); err != nil {
			return err
		}
		return emit(ctx, tx, s.opts.Now, current.TherapistID, ruleEvent(ruleDeleted, current))
	})
	s.finish(span, "delete", err, "availability_id", id)
	if err != nil {
		return err
	}
	s.opts.Logger.Info("availability rule deleted", "availability_id", id)
	return nil
}

// ownedRule loads rule id, hiding rules that belong to another therapist.
func (s *RuleService) ownedRule(ctx context.Context, tx Tx, id string) (Rule, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Rule{}, ErrRuleNotFound
	}
	r, err := tx.GetRule(ctx, id)
	if err != nil {
		return Rule{}, err
	}
	if !identity.CanActAsTherapist(ctx, r.TherapistID) {
		return Rule{}, ErrRuleNotFound
	}
	return r, nil
}

func (s *RuleService) finish(span trace.Span, op string, err error, args ...any) {
	s.opts.Metrics.ObserveRuleMutation(op, outcome(err))
	if err == nil {
		return
	}
	span.RecordError(err)
	if classify(err) == "" {
		span.SetStatus(codes.Error, err.Error())
	}
	logFailure(s.opts.Logger, "availability rule "+op+" failed", err, args...)
}
