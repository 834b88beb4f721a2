package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/medremind-api/internal/domain"
	"github.com/medremind-api/internal/pkg/id"
)

// PushSender delivers one push notification to a device token.
type PushSender interface {
	Send(ctx context.Context, token, title, body string) error
}

// AuditStore records one notification audit entry per medicine event.
type AuditStore interface {
	Put(ctx context.Context, n *domain.Notification) error
}

// Dispatcher turns evaluator events into pushes and audit records. Pushes
// are batched: due and upcoming events sharing (token, dose instant) collapse
// into one push listing every medicine, and all of a user's missed events in
// a tick collapse into one summary push. Audit records stay per-medicine so
// each reminder is individually traceable. Delivery is fire-and-forget: a
// failed send is logged and never rolls back evaluator state.
type Dispatcher struct {
	push  PushSender
	audit AuditStore
	log   *slog.Logger
}

func NewDispatcher(push PushSender, audit AuditStore, log *slog.Logger) *Dispatcher {
	return &Dispatcher{push: push, audit: audit, log: log}
}

func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) {
	var due, upcoming, missed []Event
	for _, ev := range events {
		switch ev.Kind {
		case KindDue:
			due = append(due, ev)
		case KindUpcoming:
			upcoming = append(upcoming, ev)
		case KindMissed:
			missed = append(missed, ev)
		}
	}

	for _, group := range groupByTokenInstant(due) {
		d.send(ctx, group[0].PushToken, "Time to Take Medicine", dueBody(group))
		d.recordAll(ctx, group, domain.NotificationTypeReminder, "Time to Take Medicine")
	}
	for _, group := range groupByTokenInstant(upcoming) {
		d.send(ctx, group[0].PushToken, "Upcoming Medicine Reminder", upcomingBody(group))
		d.recordAll(ctx, group, domain.NotificationTypeReminder, "Upcoming Medicine Reminder")
	}
	for _, group := range groupByToken(missed) {
		d.send(ctx, group[0].PushToken, "Missed Medicine Reminder", missedBody(group))
		d.recordAll(ctx, group, domain.NotificationTypeMissedDose, "Missed Medicine Reminder")
	}
}

// dueBody: "It's time to take your {period} dose: {name1}({dosage1}), {name2}({dosage2})!"
func dueBody(group []Event) string {
	parts := make([]string, len(group))
	for i, ev := range group {
		parts[i] = fmt.Sprintf("%s(%s)", ev.Medicine.Name, ev.Medicine.Dosage)
	}
	period := domain.PeriodName(group[0].DoseInstant.Hour())
	return fmt.Sprintf("It's time to take your %s dose: %s!", period, strings.Join(parts, ", "))
}

// upcomingBody: "Take your {period} dose: {names} at {localTime}"
func upcomingBody(group []Event) string {
	names := make([]string, len(group))
	for i, ev := range group {
		names[i] = ev.Medicine.Name
	}
	instant := group[0].DoseInstant
	period := domain.PeriodName(instant.Hour())
	return fmt.Sprintf("Take your %s dose: %s at %s", period, strings.Join(names, ", "), instant.Format("15:04"))
}

// missedBody groups a user's missed doses by period name; one sentence per
// period, joined with ". ".
func missedBody(group []Event) string {
	var order []string
	byPeriod := make(map[string][]string)
	for _, ev := range group {
		period := domain.PeriodName(ev.DoseInstant.Hour())
		if _, ok := byPeriod[period]; !ok {
			order = append(order, period)
		}
		byPeriod[period] = append(byPeriod[period], ev.Medicine.Name)
	}
	parts := make([]string, len(order))
	for i, period := range order {
		parts[i] = fmt.Sprintf("You missed your %s dose: %s. Please take them as soon as possible!",
			period, strings.Join(byPeriod[period], ", "))
	}
	return strings.Join(parts, ". ")
}

func (d *Dispatcher) send(ctx context.Context, token, title, body string) {
	if err := d.push.Send(ctx, token, title, body); err != nil {
		d.log.Error("push send failed", "title", title, "err", err)
	}
}

func (d *Dispatcher) recordAll(ctx context.Context, group []Event, notifType, title string) {
	now := time.Now().UTC()
	for _, ev := range group {
		n := &domain.Notification{
			NotificationID: id.New(),
			UserID:         ev.UserID,
			UserEmail:      ev.UserEmail,
			Title:          title,
			Message:        fmt.Sprintf("%s (%s)", ev.Medicine.Name, ev.Medicine.Dosage),
			Type:           notifType,
			MedicineID:     &ev.Medicine.MedicineID,
			MedicineName:   &ev.Medicine.Name,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := d.audit.Put(ctx, n); err != nil {
			d.log.Error("audit record failed", "user_id", ev.UserID, "medicine_id", ev.Medicine.MedicineID, "err", err)
		}
	}
}

type groupKey struct {
	token   string
	instant int64
}

// groupByTokenInstant batches events sharing a push token and dose instant,
// preserving first-seen order.
func groupByTokenInstant(events []Event) [][]Event {
	var order []groupKey
	groups := make(map[groupKey][]Event)
	for _, ev := range events {
		k := groupKey{token: ev.PushToken, instant: ev.DoseInstant.Unix()}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], ev)
	}
	out := make([][]Event, len(order))
	for i, k := range order {
		out[i] = groups[k]
	}
	return out
}

// groupByToken batches all of a user's events into one group per push token.
func groupByToken(events []Event) [][]Event {
	var order []string
	groups := make(map[string][]Event)
	for _, ev := range events {
		if _, ok := groups[ev.PushToken]; !ok {
			order = append(order, ev.PushToken)
		}
		groups[ev.PushToken] = append(groups[ev.PushToken], ev)
	}
	out := make([][]Event, len(order))
	for i, k := range order {
		out[i] = groups[k]
	}
	return out
}
