package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/KAsare1/Kodefx-capital/cmd/models"
	"github.com/KAsare1/Kodefx-capital/service/capital"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const noNextEntry = "no next entry"

// materializeTimeout bounds a shared daily materialization.
const materializeTimeout = 30 * time.Second

// DailyResult is the day's ledger as returned by EnsureTodayEntries.
type DailyResult struct {
	Day     string                    `json:"day"`
	Created bool                      `json:"created"`
	Entries []models.DailyLedgerEntry `json:"entries"`
}

// EnsureTodayEntries returns today's entries, creating one pending entry per
// schedule slot the first time it is called on a day. Once any entry exists for
// today nothing more is created.
// Callers share one materialization, which keeps running when any single
// caller gives up.
func (s *Service) EnsureTodayEntries(ctx context.Context, userID uint) (*DailyResult, error) {
	ch := s.daily.DoChan(userLockKey(userID), func() (interface{}, error) {
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), materializeTimeout)
		defer cancel()
		return s.materialize(mctx, userID)
	})

	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r.Err = conflictf("waiting for today's entries: %v", ctx.Err())
	}
	if r.Err != nil {
		return nil, s.finish(ctx, "ensure_today_entries", userID, r.Err)
	}

	shared := r.Val.(*DailyResult)
	res := &DailyResult{Day: shared.Day, Created: shared.Created}
	res.Entries = append([]models.DailyLedgerEntry(nil), shared.Entries...)
	return res, nil
}

func (s *Service) materialize(ctx context.Context, userID uint) (*DailyResult, error) {
	var res *DailyResult
	err := s.withUserLock(ctx, userID, func() error {
		now := s.clock.Now()
		day := DayKey(now)

		res = &DailyResult{Day: day}
		err := s.store.Atomic(ctx, func(tx Tx) error {
			schedule, err := tx.Schedule(userID)
			if err != nil {
				return err
			}
			existing, err := tx.EntriesForDay(userID, day)
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				res.Entries = existing
				return nil
			}

			slots, err := tx.SlotsByID(userID, schedule.SlotIDs)
			if err != nil {
				return err
			}
			if len(slots) == 0 {
				return notFoundf("no signal slots configured for user %d", userID)
			}

			entries := s.newEntries(userID, day, schedule, slots)
			for i := range entries {
				entries[i].CreatedAt = now
			}
			if err := tx.CreateEntries(entries); err != nil {
				return err
			}
			res.Entries = entries
			res.Created = true
			return nil
		})
		if errors.Is(err, ErrAlreadyExists) {
			// Another writer created the day's entries first.
			res = &DailyResult{Day: day}
			err = s.store.Atomic(ctx, func(tx Tx) error {
				var err error
				res.Entries, err = tx.EntriesForDay(userID, day)
				return err
			})
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if res.Created {
		s.observer.EntriesCreated(len(res.Entries))
		zerolog.Ctx(ctx).Info().
			Uint("user_id", userID).
			Str("day", res.Day).
			Int("entries", len(res.Entries)).
			Msg("daily ledger entries created")
	}
	return res, nil
}

func (s *Service) newEntries(userID uint, day string, schedule *models.SignalSchedule, slots []models.SignalSlot) []models.DailyLedgerEntry {
	entries := make([]models.DailyLedgerEntry, len(slots))
	for i, slot := range slots {
		entries[i] = models.DailyLedgerEntry{
			UserID:   userID,
			Day:      day,
			SlotID:   slot.ID,
			Name:     slot.Name,
			Time:     slot.Window(),
			Reminder: slot.ReminderEnabled,
			Profit:   "0",
			Status:   models.StatusPending,
		}
	}
	if s.seed == SeedFromSchedule {
		entries[0].PrevCapital = schedule.StartingCapital
	}
	return entries
}

// SignalSummary describes a resolved entry.
type SignalSummary struct {
	EntryID       uint               `json:"entryId"`
	Name          string             `json:"name"`
	Day           string             `json:"day"`
	Time          string             `json:"time"`
	Status        models.EntryStatus `json:"status"`
	PrevCapital   float64            `json:"prevCapital"`
	RecentCapital float64            `json:"recentCapital"`
	Profit        string             `json:"profit"`
}

type ResolutionResult struct {
	NewBalance           float64             `json:"newBalance"`
	TransactionBreakdown *capital.StepReport `json:"transactionBreakdown,omitempty"`
	SignalSummary        SignalSummary       `json:"signalSummary"`
	NextEntryUpdated     bool                `json:"nextEntryUpdated"`
	NextEntryID          uint                `json:"nextEntryId,omitempty"`
	Note                 string              `json:"note,omitempty"`
}

// ResolveEntry records whether the entry's signal arrived. A received signal
// compounds the entry's capital, chains the result into the next pending entry
// and becomes the schedule balance. Everything happens in one transaction.
func (s *Service) ResolveEntry(ctx context.Context, userID, entryID uint, received bool) (*ResolutionResult, error) {
	var res *ResolutionResult
	err := s.withUserLock(ctx, userID, func() error {
		return s.store.Atomic(ctx, func(tx Tx) error {
			entry, err := tx.Entry(userID, entryID)
			if err != nil {
				return err
			}
			if entry.Status.Terminal() {
				return conflictf("ledger entry %d is already %s", entryID, entry.Status)
			}

			now := s.clock.Now()
			entry.ResolvedAt = &now

			if !received {
				schedule, err := tx.Schedule(userID)
				if err != nil {
					return err
				}
				entry.Status = models.StatusNotReceived
				if err := tx.SaveEntry(entry); err != nil {
					return err
				}
				res = &ResolutionResult{
					NewBalance:    schedule.StartingCapital,
					SignalSummary: summarize(entry),
				}
				return nil
			}

			schedule, err := tx.ScheduleForUpdate(userID)
			if err != nil {
				return err
			}
			if entry.PrevCapital == 0 {
				// Nothing chained into this entry; it starts from the current balance.
				entry.PrevCapital = schedule.StartingCapital
			}

			step := s.params.ApplyForward(entry.PrevCapital)
			snapshot, err := json.Marshal(step)
			if err != nil {
				return err
			}
			entry.RecentCapital = step.NewCapital
			entry.Profit = capital.FormatAmount(step.Profit)
			entry.Status = models.StatusCompleted
			entry.Breakdown = snapshot
			if err := tx.SaveEntry(entry); err != nil {
				return err
			}

			report := step.Report()
			res = &ResolutionResult{
				NewBalance:           step.NewCapital,
				TransactionBreakdown: &report,
				SignalSummary:        summarize(entry),
				Note:                 noNextEntry,
			}

			next, err := tx.NextPendingEntry(userID, entry.ID)
			if err != nil {
				return err
			}
			if next != nil {
				next.PrevCapital = step.NewCapital
				if err := tx.SaveEntry(next); err != nil {
					return err
				}
				res.NextEntryUpdated = true
				res.NextEntryID = next.ID
				res.Note = ""
			}

			return tx.UpdateScheduleCapital(schedule, step.NewCapital)
		})
	})
	if err != nil {
		return nil, s.finish(ctx, "resolve_entry", userID, err)
	}

	s.observer.EntryResolved(res.SignalSummary.Status)
	zerolog.Ctx(ctx).Info().
		Uint("user_id", userID).
		Uint("entry_id", entryID).
		Str("status", string(res.SignalSummary.Status)).
		Float64("balance", res.NewBalance).
		Bool("next_entry_updated", res.NextEntryUpdated).
		Msg("ledger entry resolved")
	return res, nil
}

func summarize(e *models.DailyLedgerEntry) SignalSummary {
	return SignalSummary{
		EntryID:       e.ID,
		Name:          e.Name,
		Day:           e.Day,
		Time:          e.Time,
		Status:        e.Status,
		PrevCapital:   e.PrevCapital,
		RecentCapital: e.RecentCapital,
		Profit:        e.Profit,
	}
}

type DepositResult struct {
	Deposited    float64                  `json:"deposited"`
	NewBalance   float64                  `json:"newBalance"`
	UpdatedEntry *models.DailyLedgerEntry `json:"updatedEntry"`
}

// AddDeposit adds amount to the schedule balance and reseeds today's earliest
// pending entry with it. Pending entries left over from earlier days keep their
// seed; a day not yet materialized picks the deposit up from the schedule.
func (s *Service) AddDeposit(ctx context.Context, userID uint, amount float64) (*DepositResult, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, s.finish(ctx, "add_deposit", userID, validationf("deposit must be a positive amount"))
	}

	var res *DepositResult
	err := s.withUserLock(ctx, userID, func() error {
		return s.store.Atomic(ctx, func(tx Tx) error {
			schedule, err := tx.ScheduleForUpdate(userID)
			if err != nil {
				return err
			}
			balance := schedule.StartingCapital + amount
			if err := tx.UpdateScheduleCapital(schedule, balance); err != nil {
				return err
			}
			res = &DepositResult{Deposited: amount, NewBalance: balance}

			entry, err := tx.FirstPendingEntry(userID, DayKey(s.clock.Now()))
			if err != nil {
				return err
			}
			if entry != nil {
				entry.PrevCapital = balance
				if err := tx.SaveEntry(entry); err != nil {
					return err
				}
				res.UpdatedEntry = entry
			}
			return nil
		})
	})
	if err != nil {
		return nil, s.finish(ctx, "add_deposit", userID, err)
	}

	s.observer.Deposited(amount)
	zerolog.Ctx(ctx).Info().
		Uint("user_id", userID).
		Float64("amount", amount).
		Float64("balance", res.NewBalance).
		Msg("deposit added")
	return res, nil
}

// DayGroup is one calendar day of ledger entries.
type DayGroup struct {
	Day     string                    `json:"day"`
	Entries []models.DailyLedgerEntry `json:"entries"`
}

// GroupByDay returns all of the user's entries grouped by day, oldest day first.
func (s *Service) GroupByDay(ctx context.Context, userID uint) ([]DayGroup, error) {
	var entries []models.DailyLedgerEntry
	err := s.store.Atomic(ctx, func(tx Tx) error {
		var err error
		entries, err = tx.Entries(userID)
		return err
	})
	if err != nil {
		return nil, s.finish(ctx, "group_by_day", userID, err)
	}

	index := make(map[string]int)
	groups := make([]DayGroup, 0)
	for _, e := range entries {
		i, ok := index[e.Day]
		if !ok {
			i = len(groups)
			index[e.Day] = i
			groups = append(groups, DayGroup{Day: e.Day})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Day < groups[j].Day })
	return groups, nil
}

// EntryDetail is an entry with the schedule it belongs to.
type EntryDetail struct {
	Entry    *models.DailyLedgerEntry `json:"signal"`
	Schedule *models.SignalSchedule   `json:"userSignal"`
}

func (s *Service) Entry(ctx context.Context, userID, entryID uint) (*EntryDetail, error) {
	detail := &EntryDetail{}
	err := s.store.Atomic(ctx, func(tx Tx) error {
		var err error
		if detail.Entry, err = tx.Entry(userID, entryID); err != nil {
			return err
		}
		detail.Schedule, err = tx.Schedule(userID)
		return err
	})
	if err != nil {
		return nil, s.finish(ctx, "get_entry", userID, err)
	}
	return detail, nil
}
