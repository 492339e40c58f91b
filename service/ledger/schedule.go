package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/KAsare1/Kodefx-capital/cmd/models"
	"github.com/KAsare1/Kodefx-capital/service/capital"
	"github.com/rs/zerolog"
)

const slotTimeLayout = "15:04"

// SlotRequest asks for one recurring signal window.
type SlotRequest struct {
	Label           string
	StartTime       string
	EndTime         string
	ReminderEnabled bool
}

// NewSchedule is the input of CreateSchedule.
type NewSchedule struct {
	StartingCapital float64
	ReminderPolicy  string
	SignalsPerDay   int
	Slots           []SlotRequest
}

// TradeSchedule tells setup whether signals already happened between the
// supplied balance and the schedule start.
type TradeSchedule string

const (
	TradeScheduleInBetween TradeSchedule = "inbetween"
	TradeScheduleFresh     TradeSchedule = "fresh"
)

// startingCapitalPolicies picks the stored balance from the supplied one and the
// one derived by solving backward.
var startingCapitalPolicies = map[TradeSchedule]func(supplied, derived float64) float64{
	TradeScheduleInBetween: func(_, derived float64) float64 { return derived },
	TradeScheduleFresh:     func(supplied, _ float64) float64 { return supplied },
}

func (t TradeSchedule) startingCapital(supplied, derived float64) float64 {
	policy, ok := startingCapitalPolicies[t]
	if !ok {
		policy = startingCapitalPolicies[TradeScheduleFresh]
	}
	return policy(supplied, derived)
}

// SetupRequest is the account setup form.
type SetupRequest struct {
	StartingCapital float64
	ElapsedSignals  int
	SignalsPerDay   int
	TradeSchedule   TradeSchedule
	ReminderPolicy  string
	Slots           []SlotRequest
}

type SetupResult struct {
	Schedule          *models.SignalSchedule `json:"userSignal"`
	Slots             []models.SignalSlot    `json:"signals"`
	CalculatedCapital float64                `json:"calculatedCapital"`
	Breakdown         []capital.StepReport   `json:"breakdown"`
}

// Setup reconciles the supplied balance with the signals already elapsed and
// creates the schedule from it.
func (s *Service) Setup(ctx context.Context, userID uint, req SetupRequest) (*SetupResult, error) {
	if req.ElapsedSignals < 0 {
		return nil, s.finish(ctx, "setup", userID, validationf("numberOfSignals must not be negative"))
	}
	total := req.SignalsPerDay
	if total <= 0 {
		total = len(req.Slots)
	}
	rec, err := s.Reconcile(req.StartingCapital, req.ElapsedSignals, total)
	if err != nil {
		return nil, s.finish(ctx, "setup", userID, err)
	}

	schedule, err := s.CreateSchedule(ctx, userID, NewSchedule{
		StartingCapital: req.TradeSchedule.startingCapital(req.StartingCapital, rec.PreviousCapital),
		ReminderPolicy:  req.ReminderPolicy,
		SignalsPerDay:   req.SignalsPerDay,
		Slots:           req.Slots,
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Uint("user_id", userID).
		Str("trade_schedule", string(req.TradeSchedule)).
		Float64("starting_capital", schedule.StartingCapital).
		Int("slots", len(schedule.Slots)).
		Msg("signal schedule created")

	return &SetupResult{
		Schedule:          schedule,
		Slots:             schedule.Slots,
		CalculatedCapital: rec.PreviousCapital,
		Breakdown:         capital.Simulation{Steps: rec.Breakdown}.Reports(),
	}, nil
}

// CreateSchedule creates the user's only schedule, reusing slots that already
// exist for the same window.
func (s *Service) CreateSchedule(ctx context.Context, userID uint, in NewSchedule) (*models.SignalSchedule, error) {
	slots, err := normalizeSlots(in.Slots)
	if err != nil {
		return nil, s.finish(ctx, "create_schedule", userID, err)
	}
	if math.IsNaN(in.StartingCapital) || math.IsInf(in.StartingCapital, 0) || in.StartingCapital < 0 {
		return nil, s.finish(ctx, "create_schedule", userID, validationf("startingCapital must be a non-negative number"))
	}
	if in.SignalsPerDay < 0 {
		return nil, s.finish(ctx, "create_schedule", userID, validationf("number of signals per day must not be negative"))
	}

	var schedule *models.SignalSchedule
	err = s.withUserLock(ctx, userID, func() error {
		return s.store.Atomic(ctx, func(tx Tx) error {
			if _, err := tx.Schedule(userID); err == nil {
				return fmt.Errorf("%w: user %d already has signals configured", ErrAlreadyExists, userID)
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}

			now := s.clock.Now()
			resolved := make([]models.SignalSlot, 0, len(slots))
			for _, req := range slots {
				slot, err := tx.FindSlot(userID, req.StartTime, req.EndTime)
				if errors.Is(err, ErrNotFound) {
					slot = &models.SignalSlot{
						UserID:          userID,
						Name:            req.Label,
						StartTime:       req.StartTime,
						EndTime:         req.EndTime,
						ReminderEnabled: req.ReminderEnabled,
						CreatedAt:       now,
					}
					err = tx.CreateSlot(slot)
				}
				if err != nil {
					return err
				}
				resolved = append(resolved, *slot)
			}

			perDay := in.SignalsPerDay
			if perDay == 0 {
				perDay = len(resolved)
			}
			schedule = &models.SignalSchedule{
				UserID:                userID,
				StartingCapital:       in.StartingCapital,
				ReminderPolicy:        in.ReminderPolicy,
				NumberOfSignalsPerDay: perDay,
				SlotIDs:               slotIDs(resolved),
				Version:               1,
				CreatedAt:             now,
			}
			if err := tx.CreateSchedule(schedule); err != nil {
				return err
			}
			schedule.Slots = resolved
			return nil
		})
	})
	if err != nil {
		return nil, s.finish(ctx, "create_schedule", userID, err)
	}
	return schedule, nil
}

// DeleteSchedule removes the schedule only. Slots and ledger entries stay until
// PurgeAccount.
func (s *Service) DeleteSchedule(ctx context.Context, userID uint) error {
	err := s.withUserLock(ctx, userID, func() error {
		return s.store.Atomic(ctx, func(tx Tx) error {
			return tx.DeleteSchedule(userID)
		})
	})
	return s.finish(ctx, "delete_schedule", userID, err)
}

// GetSchedule returns the schedule with its slots in schedule order.
func (s *Service) GetSchedule(ctx context.Context, userID uint) (*models.SignalSchedule, error) {
	var schedule *models.SignalSchedule
	err := s.store.Atomic(ctx, func(tx Tx) error {
		var err error
		schedule, err = loadSchedule(tx, userID)
		return err
	})
	if err != nil {
		return nil, s.finish(ctx, "get_schedule", userID, err)
	}
	return schedule, nil
}

// ListSlots returns every slot the user owns, newest first.
func (s *Service) ListSlots(ctx context.Context, userID uint) ([]models.SignalSlot, error) {
	var slots []models.SignalSlot
	err := s.store.Atomic(ctx, func(tx Tx) error {
		var err error
		slots, err = tx.ListSlots(userID)
		return err
	})
	if err != nil {
		return nil, s.finish(ctx, "list_slots", userID, err)
	}
	if len(slots) == 0 {
		return nil, s.finish(ctx, "list_slots", userID, notFoundf("no signals found for user %d", userID))
	}
	return slots, nil
}

func loadSchedule(tx Tx, userID uint) (*models.SignalSchedule, error) {
	schedule, err := tx.Schedule(userID)
	if err != nil {
		return nil, err
	}
	schedule.Slots, err = tx.SlotsByID(userID, schedule.SlotIDs)
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

// normalizeSlots validates the requested windows, canonicalizes their times to
// HH:MM and drops repeated windows, keeping request order.
func normalizeSlots(in []SlotRequest) ([]SlotRequest, error) {
	if len(in) == 0 {
		return nil, validationf("at least one signal time slot is required")
	}

	seen := make(map[string]bool, len(in))
	out := make([]SlotRequest, 0, len(in))
	for i, req := range in {
		start, err := parseSlotTime(req.StartTime)
		if err != nil {
			return nil, validationf("slot %d: startTime: %v", i+1, err)
		}
		end, err := parseSlotTime(req.EndTime)
		if err != nil {
			return nil, validationf("slot %d: endTime: %v", i+1, err)
		}
		key := start + "-" + end
		if seen[key] {
			continue
		}
		seen[key] = true

		label := strings.TrimSpace(req.Label)
		if label == "" {
			label = fmt.Sprintf("Signal %d", len(out)+1)
		}
		out = append(out, SlotRequest{
			Label:           label,
			StartTime:       start,
			EndTime:         end,
			ReminderEnabled: req.ReminderEnabled,
		})
	}
	return out, nil
}

func parseSlotTime(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", errors.New("missing")
	}
	t, err := time.Parse(slotTimeLayout, v)
	if err != nil {
		return "", fmt.Errorf("%q is not an HH:MM time", v)
	}
	return t.Format(slotTimeLayout), nil
}

func slotIDs(slots []models.SignalSlot) []uint {
	ids := make([]uint, len(slots))
	for i, slot := range slots {
		ids[i] = slot.ID
	}
	return ids
}
