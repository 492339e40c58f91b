package models

import (
	"time"

	"gorm.io/datatypes"
)

type EntryStatus string

const (
	StatusPending     EntryStatus = "pending"
	StatusNotReceived EntryStatus = "not-received"
	StatusCompleted   EntryStatus = "completed"
)

// Terminal reports whether no further transition is allowed from s.
func (s EntryStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusNotReceived
}

// SignalSlot is a recurring time window a user expects a signal in.
type SignalSlot struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"column:user_id;not null;uniqueIndex:idx_signal_slot_window,priority:1" json:"userId"`
	Name            string    `gorm:"column:name;size:100" json:"name"`
	StartTime       string    `gorm:"column:start_time;size:5;not null;uniqueIndex:idx_signal_slot_window,priority:2" json:"startTime"`
	EndTime         string    `gorm:"column:end_time;size:5;not null;uniqueIndex:idx_signal_slot_window,priority:3" json:"endTime"`
	ReminderEnabled bool      `gorm:"column:reminder_enabled;not null;default:false" json:"reminderEnabled"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"createdAt"`
}

// Window renders the slot as "<start> - <end>".
func (s SignalSlot) Window() string {
	return s.StartTime + " - " + s.EndTime
}

// SignalSchedule is the per-user singleton holding the running balance.
type SignalSchedule struct {
	ID                    uint                      `gorm:"primaryKey" json:"id"`
	UserID                uint                      `gorm:"column:user_id;not null;uniqueIndex" json:"userId"`
	StartingCapital       float64                   `gorm:"column:starting_capital;not null" json:"startingCapital"`
	ReminderPolicy        string                    `gorm:"column:reminder_policy;size:100" json:"reminderPolicy"`
	NumberOfSignalsPerDay int                       `gorm:"column:number_of_signals_per_day;not null" json:"numberOfSignalsPerDay"`
	SlotIDs               datatypes.JSONSlice[uint] `gorm:"column:slot_ids" json:"slotIds"`
	Version               int64                     `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt             time.Time                 `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt             time.Time                 `gorm:"column:updated_at" json:"updatedAt"`

	Slots []SignalSlot `gorm:"-" json:"slots,omitempty"`
}

// DailyLedgerEntry is one slot's record for one calendar day.
type DailyLedgerEntry struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"column:user_id;not null;uniqueIndex:idx_ledger_entry_day_slot,priority:1;index:idx_ledger_entry_status,priority:1" json:"userId"`
	Day           string         `gorm:"column:day;size:10;not null;uniqueIndex:idx_ledger_entry_day_slot,priority:2" json:"day"`
	SlotID        uint           `gorm:"column:slot_id;not null;uniqueIndex:idx_ledger_entry_day_slot,priority:3" json:"slotId"`
	Name          string         `gorm:"column:name;size:100" json:"name"`
	Time          string         `gorm:"column:time;size:20;not null" json:"time"`
	Reminder      bool           `gorm:"column:reminder;not null;default:false" json:"reminder"`
	PrevCapital   float64        `gorm:"column:prev_capital;not null;default:0" json:"prevCapital"`
	RecentCapital float64        `gorm:"column:recent_capital;not null;default:0" json:"recentCapital"`
	Profit        string         `gorm:"column:profit;size:32;not null;default:'0'" json:"profit"`
	Status        EntryStatus    `gorm:"column:status;size:20;not null;default:'pending';index:idx_ledger_entry_status,priority:2" json:"status"`
	Breakdown     datatypes.JSON `gorm:"column:breakdown" json:"breakdown,omitempty"`
	ResolvedAt    *time.Time     `gorm:"column:resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt     time.Time      `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt     time.Time      `gorm:"column:updated_at" json:"updatedAt"`
}

func (DailyLedgerEntry) TableName() string {
	return "daily_ledger_entries"
}

// All lists every model the service migrates, in dependency order.
func All() []interface{} {
	return []interface{}{
		&SignalSlot{},
		&SignalSchedule{},
		&DailyLedgerEntry{},
	}
}
