package ledger

import (
	"context"

	"github.com/KAsare1/Kodefx-capital/cmd/models"
)

// Store runs fn as one atomic unit: either every write made through tx is kept or
// none is.
type Store interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the data access available inside Store.Atomic. Lookups of a single
// record return an ErrNotFound-wrapped error when it is absent; Next/First
// lookups return nil, nil instead.
type Tx interface {
	Schedule(userID uint) (*models.SignalSchedule, error)
	// ScheduleForUpdate is Schedule with the row held until the transaction ends.
	ScheduleForUpdate(userID uint) (*models.SignalSchedule, error)
	CreateSchedule(schedule *models.SignalSchedule) error
	// UpdateScheduleCapital writes a new balance if schedule.Version is still
	// current, bumping the version. A stale version yields ErrConflict.
	UpdateScheduleCapital(schedule *models.SignalSchedule, capital float64) error
	DeleteSchedule(userID uint) error

	FindSlot(userID uint, startTime, endTime string) (*models.SignalSlot, error)
	CreateSlot(slot *models.SignalSlot) error
	// SlotsByID returns the user's slots in the order of ids, skipping unknown ids.
	SlotsByID(userID uint, ids []uint) ([]models.SignalSlot, error)
	ListSlots(userID uint) ([]models.SignalSlot, error)

	EntriesForDay(userID uint, day string) ([]models.DailyLedgerEntry, error)
	// CreateEntries inserts entries in order and fills in their ids. A second
	// entry for the same (user, day, slot) yields ErrAlreadyExists.
	CreateEntries(entries []models.DailyLedgerEntry) error
	Entry(userID, entryID uint) (*models.DailyLedgerEntry, error)
	NextPendingEntry(userID, afterID uint) (*models.DailyLedgerEntry, error)
	// FirstPendingEntry is the earliest pending entry on day.
	FirstPendingEntry(userID uint, day string) (*models.DailyLedgerEntry, error)
	SaveEntry(entry *models.DailyLedgerEntry) error
	// Entries returns all the user's entries in creation order.
	Entries(userID uint) ([]models.DailyLedgerEntry, error)

	// PurgeUser hard-deletes the user's entries, slots and schedule.
	PurgeUser(userID uint) (PurgeResult, error)
}

type PurgeResult struct {
	Entries   int64 `json:"entries"`
	Slots     int64 `json:"slots"`
	Schedules int64 `json:"schedules"`
}
