package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/medremind-api/internal/application/reminder"
	"github.com/medremind-api/internal/domain"
)

type medicineStore interface {
	ListActive(ctx context.Context) ([]domain.Medicine, error)
}

type userStore interface {
	GetMany(ctx context.Context, userIDs []string) (map[string]*domain.User, error)
}

type deviceStore interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Device, error)
}

type doseDayStore interface {
	GetOrCreate(ctx context.Context, medicineID, date string, doseCount int) (*domain.DoseDayState, error)
	SetRemindersSent(ctx context.Context, medicineID, date, remindersSent string) error
}

type dispatcher interface {
	Dispatch(ctx context.Context, events []reminder.Event)
}

// Scheduler drives reminder evaluation on a fixed interval. Each tick takes a
// snapshot of active medicines and walks them independently, so one failing
// medicine never blocks the rest.
type Scheduler struct {
	medicines medicineStore
	users     userStore
	devices   deviceStore
	doseDays  doseDayStore

	evaluator  *reminder.Evaluator
	dispatcher dispatcher

	interval time.Duration
	log      *slog.Logger
	ticking  sync.Mutex
	now      func() time.Time
}

type Deps struct {
	MedicineRepo medicineStore
	UserRepo     userStore
	DeviceRepo   deviceStore
	DoseDayRepo  doseDayStore
	Dispatcher   dispatcher
}

// New builds a Scheduler. The interval doubles as the evaluation window so
// consecutive ticks cover the timeline without gaps or overlap.
func New(deps Deps, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		medicines:  deps.MedicineRepo,
		users:      deps.UserRepo,
		devices:    deps.DeviceRepo,
		doseDays:   deps.DoseDayRepo,
		evaluator:  reminder.NewEvaluator(interval),
		dispatcher: deps.Dispatcher,
		interval:   interval,
		log:        log,
		now:        time.Now,
	}
}

// Run ticks until ctx is cancelled. It returns only after any in-flight tick
// has completed, so callers can wait on it during shutdown.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one evaluation pass. If a previous pass is still running (a slow
// datastore can outlast the interval) this pass is skipped rather than queued.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.ticking.TryLock() {
		s.log.Warn("previous tick still running, skipping")
		return
	}
	defer s.ticking.Unlock()

	now := s.now().UTC()
	medicines, err := s.medicines.ListActive(ctx)
	if err != nil {
		s.log.Error("list active medicines failed", "err", err)
		return
	}
	if len(medicines) == 0 {
		return
	}

	userIDs := make([]string, 0, len(medicines))
	seen := map[string]bool{}
	for _, m := range medicines {
		if !seen[m.UserID] {
			seen[m.UserID] = true
			userIDs = append(userIDs, m.UserID)
		}
	}
	users, err := s.users.GetMany(ctx, userIDs)
	if err != nil {
		s.log.Error("load users failed", "err", err)
		return
	}

	tokens := map[string]string{}
	for _, uid := range userIDs {
		tokens[uid] = s.pushToken(ctx, uid)
	}

	var events []reminder.Event
	for i := range medicines {
		m := &medicines[i]
		evs, err := s.evaluateMedicine(ctx, now, m, users[m.UserID], tokens[m.UserID])
		if err != nil {
			s.log.Error("evaluate medicine failed", "medicine_id", m.MedicineID, "err", err)
			continue
		}
		events = append(events, evs...)
	}
	if len(events) > 0 {
		s.dispatcher.Dispatch(ctx, events)
	}
}

// evaluateMedicine runs the state machine for one medicine and persists any
// flag advance before returning its events. Persist-then-send: a crash in
// between loses a notification rather than duplicating one.
func (s *Scheduler) evaluateMedicine(ctx context.Context, now time.Time, m *domain.Medicine, u *domain.User, token string) ([]reminder.Event, error) {
	if u == nil {
		s.log.Warn("medicine owner not found, skipping", "medicine_id", m.MedicineID, "user_id", m.UserID)
		return nil, nil
	}
	settings := u.Settings.Normalized()
	date := now.Format(domain.DateLayout)
	day, _ := time.Parse(domain.DateLayout, date)
	instants := domain.DoseInstants(m.Frequency, day, settings.ReminderTimes)
	if len(instants) == 0 {
		return nil, nil
	}

	state, err := s.doseDays.GetOrCreate(ctx, m.MedicineID, date, len(instants))
	if err != nil {
		return nil, err
	}

	events, changed := s.evaluator.Evaluate(now, &reminder.Target{
		Medicine:  m,
		User:      u,
		Settings:  settings,
		PushToken: token,
		Instants:  instants,
		State:     state,
	})
	if !changed {
		return nil, nil
	}
	if err := s.doseDays.SetRemindersSent(ctx, m.MedicineID, date, state.RemindersSent); err != nil {
		return nil, err
	}
	return events, nil
}

// pushToken returns the most recently updated enabled device token for a
// user, or "" when the user has no registered device.
func (s *Scheduler) pushToken(ctx context.Context, userID string) string {
	devices, err := s.devices.ListByUser(ctx, userID)
	if err != nil {
		s.log.Warn("list devices failed", "user_id", userID, "err", err)
		return ""
	}
	var best *domain.Device
	for i := range devices {
		d := &devices[i]
		if d.PushToken == nil || *d.PushToken == "" {
			continue
		}
		if best == nil || d.UpdatedAt.After(best.UpdatedAt) {
			best = d
		}
	}
	if best == nil {
		return ""
	}
	return *best.PushToken
}
