package domain

import (
	"strings"
	"time"
)

// Per-slot flag values. Taken sequences use Unset/Done only. RemindersSent
// sequences move Unset -> UpcomingSent -> DueSent -> MissedSent; each
// transition is terminal for the check that made it, so a reminder can never
// re-fire for the same slot on the same day.
const (
	FlagUnset        = "0"
	FlagDone         = "1"
	FlagUpcomingSent = "U"
	FlagMissedSent   = "M"
)

const DateLayout = "2006-01-02"

// DoseDayState is the per-(medicine, calendar day) dose ledger. Taken and
// RemindersSent are dash-joined flag sequences, one flag per dose instant.
// Taken is only ever written by the user-facing mark-taken operation;
// RemindersSent only by the reminder evaluator.
type DoseDayState struct {
	MedicineID    string    `json:"medicine_id" dynamodbav:"medicine_id"`
	Date          string    `json:"date" dynamodbav:"date"` // YYYY-MM-DD
	Taken         string    `json:"taken" dynamodbav:"taken"`
	RemindersSent string    `json:"reminders_sent" dynamodbav:"reminders_sent"`
	CreatedAt     time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt     time.Time `json:"updated" dynamodbav:"updated_at"`
}

// NewDoseDayState builds a fresh state with both sequences set to doseCount
// copies of FlagUnset.
func NewDoseDayState(medicineID, date string, doseCount int, now time.Time) *DoseDayState {
	seq := NewFlagSequence(doseCount)
	return &DoseDayState{
		MedicineID:    medicineID,
		Date:          date,
		Taken:         seq,
		RemindersSent: seq,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewFlagSequence returns n FlagUnset values joined by "-". n <= 0 yields "".
func NewFlagSequence(n int) string {
	if n <= 0 {
		return ""
	}
	flags := make([]string, n)
	for i := range flags {
		flags[i] = FlagUnset
	}
	return strings.Join(flags, "-")
}

// SplitFlags splits a dash-joined flag sequence. An empty sequence yields nil.
func SplitFlags(seq string) []string {
	if seq == "" {
		return nil
	}
	return strings.Split(seq, "-")
}

// FlagAt returns the flag at index, or FlagUnset when the sequence is shorter.
func FlagAt(seq string, index int) string {
	flags := SplitFlags(seq)
	if index < 0 || index >= len(flags) {
		return FlagUnset
	}
	return flags[index]
}

// SetFlag writes flag at index, growing the sequence with FlagUnset padding
// when index is past the end. Growth rather than an error keeps a mid-day
// frequency change from poisoning the day's state.
func SetFlag(seq string, index int, flag string) string {
	if index < 0 {
		return seq
	}
	flags := SplitFlags(seq)
	for len(flags) <= index {
		flags = append(flags, FlagUnset)
	}
	flags[index] = flag
	return strings.Join(flags, "-")
}
