package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KAsare1/Kodefx-capital/cmd/models"
	"github.com/KAsare1/Kodefx-capital/service/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the gorm implementation of ledger.Store. Each Atomic call is one
// database transaction.
type Store struct {
	db *gorm.DB
}

var _ ledger.Store = (*Store)(nil)

type StoreOption func(*Store)

// WithClock makes gorm timestamp rows with c, so they follow the ledger's
// timezone.
func WithClock(c ledger.Clock) StoreOption {
	return func(s *Store) { s.db = s.db.Session(&gorm.Session{NewDB: true, NowFunc: c.Now}) }
}

func NewStore(db *gorm.DB, opts ...StoreOption) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key")
}

func (t *gormTx) Schedule(userID uint) (*models.SignalSchedule, error) {
	return t.schedule(t.db, userID)
}

func (t *gormTx) ScheduleForUpdate(userID uint) (*models.SignalSchedule, error) {
	q := t.db
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return t.schedule(q, userID)
}

func (t *gormTx) schedule(q *gorm.DB, userID uint) (*models.SignalSchedule, error) {
	var schedule models.SignalSchedule
	if err := q.Where("user_id = ?", userID).First(&schedule).Error; err != nil {
		return nil, notFound(err, "signal schedule for user %d", userID)
	}
	return &schedule, nil
}

func (t *gormTx) CreateSchedule(schedule *models.SignalSchedule) error {
	if schedule.Version == 0 {
		schedule.Version = 1
	}
	if err := t.db.Create(schedule).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: signal schedule for user %d", ledger.ErrAlreadyExists, schedule.UserID)
		}
		return err
	}
	return nil
}

func (t *gormTx) UpdateScheduleCapital(schedule *models.SignalSchedule, capital float64) error {
	now := t.db.NowFunc()
	res := t.db.Model(&models.SignalSchedule{}).
		Where("id = ? AND version = ?", schedule.ID, schedule.Version).
		Updates(map[string]interface{}{
			"starting_capital": capital,
			"version":          gorm.Expr("version + 1"),
			"updated_at":       now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: signal schedule for user %d changed concurrently", ledger.ErrConflict, schedule.UserID)
	}
	schedule.StartingCapital = capital
	schedule.Version++
	schedule.UpdatedAt = now
	return nil
}

func (t *gormTx) DeleteSchedule(userID uint) error {
	res := t.db.Where("user_id = ?", userID).Delete(&models.SignalSchedule{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: signal schedule for user %d", ledger.ErrNotFound, userID)
	}
	return nil
}

func (t *gormTx) FindSlot(userID uint, startTime, endTime string) (*models.SignalSlot, error) {
	var slot models.SignalSlot
	err := t.db.Where("user_id = ? AND start_time = ? AND end_time = ?", userID, startTime, endTime).First(&slot).Error
	if err != nil {
		return nil, notFound(err, "signal slot %s - %s for user %d", startTime, endTime, userID)
	}
	return &slot, nil
}

func (t *gormTx) CreateSlot(slot *models.SignalSlot) error {
	if err := t.db.Create(slot).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: signal slot %s", ledger.ErrAlreadyExists, slot.Window())
		}
		return err
	}
	return nil
}

func (t *gormTx) SlotsByID(userID uint, ids []uint) ([]models.SignalSlot, error) {
	out := make([]models.SignalSlot, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var found []models.SignalSlot
	if err := t.db.Where("user_id = ? AND id IN ?", userID, ids).Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.SignalSlot, len(found))
	for _, slot := range found {
		byID[slot.ID] = slot
	}
	for _, id := range ids {
		if slot, ok := byID[id]; ok {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (t *gormTx) ListSlots(userID uint) ([]models.SignalSlot, error) {
	var slots []models.SignalSlot
	err := t.db.Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC").Find(&slots).Error
	return slots, err
}

func (t *gormTx) EntriesForDay(userID uint, day string) ([]models.DailyLedgerEntry, error) {
	var entries []models.DailyLedgerEntry
	err := t.db.Where("user_id = ? AND day = ?", userID, day).Order("id").Find(&entries).Error
	return entries, err
}

func (t *gormTx) CreateEntries(entries []models.DailyLedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := t.db.Create(&entries).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: ledger entries for %s", ledger.ErrAlreadyExists, entries[0].Day)
		}
		return err
	}
	return nil
}

func (t *gormTx) Entry(userID, entryID uint) (*models.DailyLedgerEntry, error) {
	var entry models.DailyLedgerEntry
	if err := t.db.Where("id = ? AND user_id = ?", entryID, userID).First(&entry).Error; err != nil {
		return nil, notFound(err, "ledger entry %d", entryID)
	}
	return &entry, nil
}

func (t *gormTx) NextPendingEntry(userID, afterID uint) (*models.DailyLedgerEntry, error) {
	return t.firstPending(t.db.Where("id > ?", afterID), userID)
}

func (t *gormTx) FirstPendingEntry(userID uint, day string) (*models.DailyLedgerEntry, error) {
	return t.firstPending(t.db.Where("day = ?", day), userID)
}

func (t *gormTx) firstPending(q *gorm.DB, userID uint) (*models.DailyLedgerEntry, error) {
	var entries []models.DailyLedgerEntry
	err := q.Where("user_id = ? AND status = ?", userID, models.StatusPending).
		Order("id").
		Limit(1).
		Find(&entries).Error
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (t *gormTx) SaveEntry(entry *models.DailyLedgerEntry) error {
	res := t.db.Model(entry).
		Where("user_id = ?", entry.UserID).
		Select("*").
		Omit("id", "user_id", "created_at").
		Updates(entry)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: ledger entry %d", ledger.ErrNotFound, entry.ID)
	}
	return nil
}

func (t *gormTx) Entries(userID uint) ([]models.DailyLedgerEntry, error) {
	var entries []models.DailyLedgerEntry
	err := t.db.Where("user_id = ?", userID).Order("id").Find(&entries).Error
	return entries, err
}

func (t *gormTx) PurgeUser(userID uint) (ledger.PurgeResult, error) {
	var res ledger.PurgeResult

	entries := t.db.Where("user_id = ?", userID).Delete(&models.DailyLedgerEntry{})
	if entries.Error != nil {
		return res, entries.Error
	}
	slots := t.db.Where("user_id = ?", userID).Delete(&models.SignalSlot{})
	if slots.Error != nil {
		return res, slots.Error
	}
	schedules := t.db.Where("user_id = ?", userID).Delete(&models.SignalSchedule{})
	if schedules.Error != nil {
		return res, schedules.Error
	}

	res.Entries = entries.RowsAffected
	res.Slots = slots.RowsAffected
	res.Schedules = schedules.RowsAffected
	return res, nil
}
