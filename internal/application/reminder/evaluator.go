package reminder

import (
	"time"

	"github.com/medremind-api/internal/domain"
)

// missedGrace is how long after a dose instant an untaken dose counts as missed.
const missedGrace = 60 * time.Minute

type Kind string

const (
	KindUpcoming Kind = "upcoming"
	KindDue      Kind = "due"
	KindMissed   Kind = "missed"
)

// Event is one notification decision for a single (medicine, dose slot).
type Event struct {
	Medicine    *domain.Medicine
	UserID      string
	UserEmail   string
	PushToken   string
	DoseIndex   int
	DoseInstant time.Time
	Kind        Kind
}

// Target is the evaluation snapshot for one medicine within a tick: the
// medicine, its owner's resolved settings and push token, today's dose
// instants, and the day's stored state.
type Target struct {
	Medicine  *domain.Medicine
	User      *domain.User
	Settings  domain.ResolvedSettings
	PushToken string
	Instants  []time.Time
	State     *domain.DoseDayState
}

// Evaluator decides, per dose slot, whether an upcoming/due/missed
// notification fires this tick. All windows span [now-pollWindow, now], the
// same interval the poll driver ticks on, so consecutive ticks cover the
// timeline without gaps. Every firing advances a persisted per-slot flag,
// which is the sole de-duplication mechanism.
type Evaluator struct {
	pollWindow time.Duration
}

func NewEvaluator(pollWindow time.Duration) *Evaluator {
	return &Evaluator{pollWindow: pollWindow}
}

// Evaluate runs the per-slot state machine against now. It mutates
// t.State.RemindersSent in place and reports whether it changed; the caller
// is responsible for persisting the mutation (and should do so before
// dispatching, so a crash between the two loses a notification instead of
// duplicating one). Taken flags are never written here.
func (e *Evaluator) Evaluate(now time.Time, t *Target) (events []Event, changed bool) {
	if t.PushToken == "" || !t.Settings.NotificationsEnabled {
		return nil, false
	}
	windowStart := now.Add(-e.pollWindow)
	inWindow := func(x time.Time) bool {
		return !x.Before(windowStart) && !x.After(now)
	}

	for i, instant := range t.Instants {
		sent := domain.FlagAt(t.State.RemindersSent, i)

		// Due: the dose instant itself entered the window and no due
		// reminder has gone out. An earlier upcoming notice ("U") does not
		// block the due one.
		if inWindow(instant) && (sent == domain.FlagUnset || sent == domain.FlagUpcomingSent) {
			events = append(events, e.event(t, i, instant, KindDue))
			t.State.RemindersSent = domain.SetFlag(t.State.RemindersSent, i, domain.FlagDone)
			sent = domain.FlagDone
			changed = true
		}

		// Missed: the grace deadline entered the window, the dose was never
		// marked taken, and no missed alert has gone out.
		if t.Settings.MissedDoseAlerts &&
			inWindow(instant.Add(missedGrace)) &&
			domain.FlagAt(t.State.Taken, i) == domain.FlagUnset &&
			sent != domain.FlagMissedSent {
			events = append(events, e.event(t, i, instant, KindMissed))
			t.State.RemindersSent = domain.SetFlag(t.State.RemindersSent, i, domain.FlagMissedSent)
			sent = domain.FlagMissedSent
			changed = true
		}

		// Upcoming: the advance-notice threshold entered the window for a
		// dose still in the future. The "U" flag replaces the old
		// tolerance-based dedup, which could double-fire when the tolerance
		// and poll cadence disagreed.
		if t.Settings.ReminderAdvance > 0 && instant.After(now) &&
			inWindow(instant.Add(-time.Duration(t.Settings.ReminderAdvance)*time.Minute)) &&
			sent == domain.FlagUnset {
			events = append(events, e.event(t, i, instant, KindUpcoming))
			t.State.RemindersSent = domain.SetFlag(t.State.RemindersSent, i, domain.FlagUpcomingSent)
			changed = true
		}
	}
	return events, changed
}

func (e *Evaluator) event(t *Target, index int, instant time.Time, kind Kind) Event {
	return Event{
		Medicine:    t.Medicine,
		UserID:      t.User.UserID,
		UserEmail:   t.User.Email,
		PushToken:   t.PushToken,
		DoseIndex:   index,
		DoseInstant: instant,
		Kind:        kind,
	}
}
