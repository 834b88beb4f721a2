package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medremind-api/internal/application/reminder"
	"github.com/medremind-api/internal/domain"
)

type mockMedicineStore struct{ mock.Mock }

func (m *mockMedicineStore) ListActive(ctx context.Context) ([]domain.Medicine, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Medicine), args.Error(1)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetMany(ctx context.Context, userIDs []string) (map[string]*domain.User, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*domain.User), args.Error(1)
}

type mockDeviceStore struct{ mock.Mock }

func (m *mockDeviceStore) ListByUser(ctx context.Context, userID string) ([]domain.Device, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Device), args.Error(1)
}

type mockDoseDayStore struct{ mock.Mock }

func (m *mockDoseDayStore) GetOrCreate(ctx context.Context, medicineID, date string, doseCount int) (*domain.DoseDayState, error) {
	args := m.Called(ctx, medicineID, date, doseCount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DoseDayState), args.Error(1)
}

func (m *mockDoseDayStore) SetRemindersSent(ctx context.Context, medicineID, date, remindersSent string) error {
	return m.Called(ctx, medicineID, date, remindersSent).Error(0)
}

type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) Dispatch(ctx context.Context, events []reminder.Event) {
	m.Called(ctx, events)
}

type fixture struct {
	medicines  *mockMedicineStore
	users      *mockUserStore
	devices    *mockDeviceStore
	doseDays   *mockDoseDayStore
	dispatcher *mockDispatcher
	sched      *Scheduler
}

func newFixture(now time.Time) *fixture {
	f := &fixture{
		medicines:  &mockMedicineStore{},
		users:      &mockUserStore{},
		devices:    &mockDeviceStore{},
		doseDays:   &mockDoseDayStore{},
		dispatcher: &mockDispatcher{},
	}
	f.sched = New(Deps{
		MedicineRepo: f.medicines,
		UserRepo:     f.users,
		DeviceRepo:   f.devices,
		DoseDayRepo:  f.doseDays,
		Dispatcher:   f.dispatcher,
	}, 5*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.sched.now = func() time.Time { return now }
	return f
}

func token(s string) *string { return &s }

func medicineFor(userID string) domain.Medicine {
	return domain.Medicine{
		MedicineID: "med-1",
		UserID:     userID,
		Name:       "Aspirin",
		Dosage:     "100mg",
		Frequency:  "1-0-1",
		Enable:     true,
	}
}

func userWithDefaults(userID string) *domain.User {
	return &domain.User{UserID: userID, Email: "u@example.com", Enable: true}
}

func TestTick_DueReminderPersistedThenDispatched(t *testing.T) {
	// 08:02 UTC: the 08:00 slot entered the window.
	now := time.Date(2026, 9, 1, 8, 2, 0, 0, time.UTC)
	f := newFixture(now)

	f.medicines.On("ListActive", mock.Anything).Return([]domain.Medicine{medicineFor("user-1")}, nil)
	f.users.On("GetMany", mock.Anything, []string{"user-1"}).
		Return(map[string]*domain.User{"user-1": userWithDefaults("user-1")}, nil)
	f.devices.On("ListByUser", mock.Anything, "user-1").
		Return([]domain.Device{{DeviceID: "dev-1", UserID: "user-1", PushToken: token("arn:token"), Enable: true}}, nil)
	f.doseDays.On("GetOrCreate", mock.Anything, "med-1", "2026-09-01", 2).
		Return(&domain.DoseDayState{MedicineID: "med-1", Date: "2026-09-01", Taken: "0-0", RemindersSent: "0-0"}, nil)

	var order []string
	f.doseDays.On("SetRemindersSent", mock.Anything, "med-1", "2026-09-01", "1-0").
		Run(func(mock.Arguments) { order = append(order, "persist") }).Return(nil)
	f.dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(events []reminder.Event) bool {
		return len(events) == 1 && events[0].Kind == reminder.KindDue && events[0].PushToken == "arn:token"
	})).Run(func(mock.Arguments) { order = append(order, "dispatch") })

	f.sched.tick(context.Background())

	f.doseDays.AssertExpectations(t)
	f.dispatcher.AssertExpectations(t)
	require.Equal(t, []string{"persist", "dispatch"}, order)
}

func TestTick_PersistFailureSuppressesDispatch(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 2, 0, 0, time.UTC)
	f := newFixture(now)

	f.medicines.On("ListActive", mock.Anything).Return([]domain.Medicine{medicineFor("user-1")}, nil)
	f.users.On("GetMany", mock.Anything, []string{"user-1"}).
		Return(map[string]*domain.User{"user-1": userWithDefaults("user-1")}, nil)
	f.devices.On("ListByUser", mock.Anything, "user-1").
		Return([]domain.Device{{DeviceID: "dev-1", UserID: "user-1", PushToken: token("arn:token"), Enable: true}}, nil)
	f.doseDays.On("GetOrCreate", mock.Anything, "med-1", "2026-09-01", 2).
		Return(&domain.DoseDayState{MedicineID: "med-1", Date: "2026-09-01", Taken: "0-0", RemindersSent: "0-0"}, nil)
	f.doseDays.On("SetRemindersSent", mock.Anything, "med-1", "2026-09-01", "1-0").
		Return(errors.New("dynamo down"))

	f.sched.tick(context.Background())

	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestTick_FailingMedicineDoesNotBlockOthers(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 2, 0, 0, time.UTC)
	f := newFixture(now)

	broken := medicineFor("user-1")
	healthy := medicineFor("user-1")
	healthy.MedicineID = "med-2"
	healthy.Name = "Metformin"

	f.medicines.On("ListActive", mock.Anything).Return([]domain.Medicine{broken, healthy}, nil)
	f.users.On("GetMany", mock.Anything, []string{"user-1"}).
		Return(map[string]*domain.User{"user-1": userWithDefaults("user-1")}, nil)
	f.devices.On("ListByUser", mock.Anything, "user-1").
		Return([]domain.Device{{DeviceID: "dev-1", UserID: "user-1", PushToken: token("arn:token"), Enable: true}}, nil)

	f.doseDays.On("GetOrCreate", mock.Anything, "med-1", "2026-09-01", 2).
		Return(nil, errors.New("dynamo down"))
	f.doseDays.On("GetOrCreate", mock.Anything, "med-2", "2026-09-01", 2).
		Return(&domain.DoseDayState{MedicineID: "med-2", Date: "2026-09-01", Taken: "0-0", RemindersSent: "0-0"}, nil)
	f.doseDays.On("SetRemindersSent", mock.Anything, "med-2", "2026-09-01", "1-0").Return(nil)
	f.dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(events []reminder.Event) bool {
		return len(events) == 1 && events[0].Medicine.MedicineID == "med-2"
	}))

	f.sched.tick(context.Background())

	f.dispatcher.AssertExpectations(t)
}

func TestTick_NoTokenSkipsEvaluation(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 2, 0, 0, time.UTC)
	f := newFixture(now)

	f.medicines.On("ListActive", mock.Anything).Return([]domain.Medicine{medicineFor("user-1")}, nil)
	f.users.On("GetMany", mock.Anything, []string{"user-1"}).
		Return(map[string]*domain.User{"user-1": userWithDefaults("user-1")}, nil)
	f.devices.On("ListByUser", mock.Anything, "user-1").Return([]domain.Device{}, nil)
	f.doseDays.On("GetOrCreate", mock.Anything, "med-1", "2026-09-01", 2).
		Return(&domain.DoseDayState{MedicineID: "med-1", Date: "2026-09-01", Taken: "0-0", RemindersSent: "0-0"}, nil)

	f.sched.tick(context.Background())

	f.doseDays.AssertNotCalled(t, "SetRemindersSent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestTick_NewestEnabledDeviceTokenWins(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 2, 0, 0, time.UTC)
	f := newFixture(now)

	old := domain.Device{DeviceID: "dev-old", UserID: "user-1", PushToken: token("arn:old"), Enable: true,
		UpdatedAt: now.Add(-48 * time.Hour)}
	fresh := domain.Device{DeviceID: "dev-new", UserID: "user-1", PushToken: token("arn:new"), Enable: true,
		UpdatedAt: now.Add(-time.Hour)}

	f.medicines.On("ListActive", mock.Anything).Return([]domain.Medicine{medicineFor("user-1")}, nil)
	f.users.On("GetMany", mock.Anything, []string{"user-1"}).
		Return(map[string]*domain.User{"user-1": userWithDefaults("user-1")}, nil)
	f.devices.On("ListByUser", mock.Anything, "user-1").Return([]domain.Device{old, fresh}, nil)
	f.doseDays.On("GetOrCreate", mock.Anything, "med-1", "2026-09-01", 2).
		Return(&domain.DoseDayState{MedicineID: "med-1", Date: "2026-09-01", Taken: "0-0", RemindersSent: "0-0"}, nil)
	f.doseDays.On("SetRemindersSent", mock.Anything, "med-1", "2026-09-01", "1-0").Return(nil)
	f.dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(events []reminder.Event) bool {
		return len(events) == 1 && events[0].PushToken == "arn:new"
	}))

	f.sched.tick(context.Background())

	f.dispatcher.AssertExpectations(t)
}

func TestTick_OverlapGuardSkipsConcurrentPass(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 2, 0, 0, time.UTC)
	f := newFixture(now)

	started := make(chan struct{})
	release := make(chan struct{})
	f.medicines.On("ListActive", mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return([]domain.Medicine{}, nil).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.sched.tick(context.Background())
	}()
	<-started

	// Second tick while the first is blocked inside ListActive must bail out
	// without touching the store.
	f.sched.tick(context.Background())
	f.medicines.AssertNumberOfCalls(t, "ListActive", 1)

	close(release)
	wg.Wait()
}

func TestTick_ListActiveErrorIsIsolated(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 2, 0, 0, time.UTC)
	f := newFixture(now)

	f.medicines.On("ListActive", mock.Anything).Return(nil, errors.New("dynamo down"))

	assert.NotPanics(t, func() { f.sched.tick(context.Background()) })
	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}
