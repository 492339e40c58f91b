package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KAsare1/Kodefx-capital/cmd/models"
)

// MemoryStore keeps the ledger in process memory. Atomic runs one transaction at
// a time and restores the previous state when fn fails.
type MemoryStore struct {
	mu   sync.Mutex
	data memData
	now  func() time.Time
}

type memData struct {
	schedules map[uint]models.SignalSchedule // keyed by user id
	slots     map[uint]models.SignalSlot
	entries   map[uint]models.DailyLedgerEntry

	nextScheduleID uint
	nextSlotID     uint
	nextEntryID    uint
}

type MemoryStoreOption func(*MemoryStore)

// WithStoreClock stamps records with c instead of the wall clock.
func WithStoreClock(c Clock) MemoryStoreOption { return func(s *MemoryStore) { s.now = c.Now } }

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		data: memData{
			schedules: make(map[uint]models.SignalSchedule),
			slots:     make(map[uint]models.SignalSlot),
			entries:   make(map[uint]models.DailyLedgerEntry),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(&memTx{d: &s.data, now: s.now}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (d memData) clone() memData {
	out := d
	out.schedules = make(map[uint]models.SignalSchedule, len(d.schedules))
	for k, v := range d.schedules {
		v.SlotIDs = append(v.SlotIDs[:0:0], v.SlotIDs...)
		out.schedules[k] = v
	}
	out.slots = make(map[uint]models.SignalSlot, len(d.slots))
	for k, v := range d.slots {
		out.slots[k] = v
	}
	out.entries = make(map[uint]models.DailyLedgerEntry, len(d.entries))
	for k, v := range d.entries {
		out.entries[k] = v
	}
	return out
}

type memTx struct {
	d   *memData
	now func() time.Time
}

func (t *memTx) Schedule(userID uint) (*models.SignalSchedule, error) {
	sched, ok := t.d.schedules[userID]
	if !ok {
		return nil, notFoundf("signal schedule for user %d", userID)
	}
	sched.SlotIDs = append(sched.SlotIDs[:0:0], sched.SlotIDs...)
	return &sched, nil
}

func (t *memTx) ScheduleForUpdate(userID uint) (*models.SignalSchedule, error) {
	return t.Schedule(userID)
}

func (t *memTx) CreateSchedule(schedule *models.SignalSchedule) error {
	if _, ok := t.d.schedules[schedule.UserID]; ok {
		return fmt.Errorf("%w: signal schedule for user %d", ErrAlreadyExists, schedule.UserID)
	}
	t.d.nextScheduleID++
	schedule.ID = t.d.nextScheduleID
	if schedule.Version == 0 {
		schedule.Version = 1
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = t.now()
	}
	schedule.UpdatedAt = schedule.CreatedAt

	stored := *schedule
	stored.Slots = nil
	stored.SlotIDs = append(schedule.SlotIDs[:0:0], schedule.SlotIDs...)
	t.d.schedules[schedule.UserID] = stored
	return nil
}

func (t *memTx) UpdateScheduleCapital(schedule *models.SignalSchedule, capital float64) error {
	stored, ok := t.d.schedules[schedule.UserID]
	if !ok {
		return notFoundf("signal schedule for user %d", schedule.UserID)
	}
	if stored.Version != schedule.Version {
		return conflictf("signal schedule for user %d changed concurrently", schedule.UserID)
	}
	stored.StartingCapital = capital
	stored.Version++
	stored.UpdatedAt = t.now()
	t.d.schedules[schedule.UserID] = stored

	schedule.StartingCapital = capital
	schedule.Version = stored.Version
	schedule.UpdatedAt = stored.UpdatedAt
	return nil
}

func (t *memTx) DeleteSchedule(userID uint) error {
	if _, ok := t.d.schedules[userID]; !ok {
		return notFoundf("signal schedule for user %d", userID)
	}
	delete(t.d.schedules, userID)
	return nil
}

func (t *memTx) FindSlot(userID uint, startTime, endTime string) (*models.SignalSlot, error) {
	for _, slot := range t.d.slots {
		if slot.UserID == userID && slot.StartTime == startTime && slot.EndTime == endTime {
			found := slot
			return &found, nil
		}
	}
	return nil, notFoundf("signal slot %s - %s for user %d", startTime, endTime, userID)
}

func (t *memTx) CreateSlot(slot *models.SignalSlot) error {
	if _, err := t.FindSlot(slot.UserID, slot.StartTime, slot.EndTime); err == nil {
		return fmt.Errorf("%w: signal slot %s", ErrAlreadyExists, slot.Window())
	}
	t.d.nextSlotID++
	slot.ID = t.d.nextSlotID
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = t.now()
	}
	t.d.slots[slot.ID] = *slot
	return nil
}

func (t *memTx) SlotsByID(userID uint, ids []uint) ([]models.SignalSlot, error) {
	out := make([]models.SignalSlot, 0, len(ids))
	for _, id := range ids {
		if slot, ok := t.d.slots[id]; ok && slot.UserID == userID {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (t *memTx) ListSlots(userID uint) ([]models.SignalSlot, error) {
	var out []models.SignalSlot
	for _, slot := range t.d.slots {
		if slot.UserID == userID {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *memTx) EntriesForDay(userID uint, day string) ([]models.DailyLedgerEntry, error) {
	return t.filterEntries(func(e models.DailyLedgerEntry) bool {
		return e.UserID == userID && e.Day == day
	}), nil
}

func (t *memTx) CreateEntries(entries []models.DailyLedgerEntry) error {
	type key struct {
		user, slot uint
		day        string
	}
	taken := make(map[key]bool)
	for _, e := range t.d.entries {
		taken[key{e.UserID, e.SlotID, e.Day}] = true
	}
	for _, e := range entries {
		k := key{e.UserID, e.SlotID, e.Day}
		if taken[k] {
			return fmt.Errorf("%w: ledger entry for slot %d on %s", ErrAlreadyExists, e.SlotID, e.Day)
		}
		taken[k] = true
	}

	for i := range entries {
		t.d.nextEntryID++
		entries[i].ID = t.d.nextEntryID
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = t.now()
		}
		entries[i].UpdatedAt = entries[i].CreatedAt
		t.d.entries[entries[i].ID] = entries[i]
	}
	return nil
}

func (t *memTx) Entry(userID, entryID uint) (*models.DailyLedgerEntry, error) {
	entry, ok := t.d.entries[entryID]
	if !ok || entry.UserID != userID {
		return nil, notFoundf("ledger entry %d", entryID)
	}
	return &entry, nil
}

func (t *memTx) NextPendingEntry(userID, afterID uint) (*models.DailyLedgerEntry, error) {
	return t.firstEntry(func(e models.DailyLedgerEntry) bool {
		return e.UserID == userID && e.ID > afterID && e.Status == models.StatusPending
	}), nil
}

func (t *memTx) FirstPendingEntry(userID uint, day string) (*models.DailyLedgerEntry, error) {
	return t.firstEntry(func(e models.DailyLedgerEntry) bool {
		return e.UserID == userID && e.Day == day && e.Status == models.StatusPending
	}), nil
}

func (t *memTx) SaveEntry(entry *models.DailyLedgerEntry) error {
	stored, ok := t.d.entries[entry.ID]
	if !ok || stored.UserID != entry.UserID {
		return notFoundf("ledger entry %d", entry.ID)
	}
	entry.UpdatedAt = t.now()
	t.d.entries[entry.ID] = *entry
	return nil
}

func (t *memTx) Entries(userID uint) ([]models.DailyLedgerEntry, error) {
	return t.filterEntries(func(e models.DailyLedgerEntry) bool {
		return e.UserID == userID
	}), nil
}

func (t *memTx) PurgeUser(userID uint) (PurgeResult, error) {
	var res PurgeResult
	for id, e := range t.d.entries {
		if e.UserID == userID {
			delete(t.d.entries, id)
			res.Entries++
		}
	}
	for id, s := range t.d.slots {
		if s.UserID == userID {
			delete(t.d.slots, id)
			res.Slots++
		}
	}
	if _, ok := t.d.schedules[userID]; ok {
		delete(t.d.schedules, userID)
		res.Schedules++
	}
	return res, nil
}

// filterEntries returns matching entries in creation order.
func (t *memTx) filterEntries(keep func(models.DailyLedgerEntry) bool) []models.DailyLedgerEntry {
	var out []models.DailyLedgerEntry
	for _, e := range t.d.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memTx) firstEntry(keep func(models.DailyLedgerEntry) bool) *models.DailyLedgerEntry {
	matches := t.filterEntries(keep)
	if len(matches) == 0 {
		return nil
	}
	return &matches[0]
}
