package medicine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medremind-api/internal/domain"
)

type mockMedicineStore struct{ mock.Mock }

func (m *mockMedicineStore) Put(ctx context.Context, med *domain.Medicine) error {
	return m.Called(ctx, med).Error(0)
}

func (m *mockMedicineStore) Get(ctx context.Context, medicineID string) (*domain.Medicine, error) {
	args := m.Called(ctx, medicineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Medicine), args.Error(1)
}

func (m *mockMedicineStore) ListByUser(ctx context.Context, userID string) ([]domain.Medicine, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Medicine), args.Error(1)
}

func (m *mockMedicineStore) Update(ctx context.Context, medicineID string, updates map[string]interface{}) error {
	return m.Called(ctx, medicineID, updates).Error(0)
}

func (m *mockMedicineStore) SoftDelete(ctx context.Context, medicineID string) error {
	return m.Called(ctx, medicineID).Error(0)
}

type mockDoseDayStore struct{ mock.Mock }

func (m *mockDoseDayStore) GetOrCreate(ctx context.Context, medicineID, date string, doseCount int) (*domain.DoseDayState, error) {
	args := m.Called(ctx, medicineID, date, doseCount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DoseDayState), args.Error(1)
}

func (m *mockDoseDayStore) SetTaken(ctx context.Context, medicineID, date, taken string) error {
	return m.Called(ctx, medicineID, date, taken).Error(0)
}

func (m *mockDoseDayStore) DeleteByMedicine(ctx context.Context, medicineID string) error {
	return m.Called(ctx, medicineID).Error(0)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type mockAuditStore struct{ mock.Mock }

func (m *mockAuditStore) Put(ctx context.Context, n *domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

type fixture struct {
	medicines *mockMedicineStore
	doseDays  *mockDoseDayStore
	users     *mockUserStore
	audit     *mockAuditStore
	mailer    *mockMailer
	svc       Service
}

func newFixture() *fixture {
	f := &fixture{
		medicines: &mockMedicineStore{},
		doseDays:  &mockDoseDayStore{},
		users:     &mockUserStore{},
		audit:     &mockAuditStore{},
		mailer:    &mockMailer{},
	}
	f.svc = NewService(ServiceDeps{
		MedicineRepo: f.medicines,
		DoseDayRepo:  f.doseDays,
		UserRepo:     f.users,
		AuditRepo:    f.audit,
		Mailer:       f.mailer,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func aspirin() *domain.Medicine {
	return &domain.Medicine{
		MedicineID:           "med-1",
		UserID:               "user-1",
		Name:                 "Aspirin",
		Dosage:               "100mg",
		Frequency:            "1-0-1",
		StartDate:            "2026-09-01",
		DurationDays:         30,
		OriginalDurationDays: 30,
		TotalPills:           60,
		OriginalTotalPills:   60,
		PillsPerDose:         1,
		DosesPerDay:          2,
		Enable:               true,
	}
}

func owner() *domain.User {
	return &domain.User{UserID: "user-1", Email: "u@example.com"}
}

func TestCreate(t *testing.T) {
	f := newFixture()
	f.medicines.On("Put", mock.Anything, mock.AnythingOfType("*domain.Medicine")).Return(nil)

	m, err := f.svc.Create(context.Background(), "user-1", domain.CreateMedicineRequest{
		Name:         "Aspirin",
		Dosage:       "100mg",
		Frequency:    "1-0-1",
		StartDate:    "2026-09-01",
		DurationDays: 30,
		TotalPills:   60,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.MedicineID)
	assert.Equal(t, "user-1", m.UserID)
	assert.Equal(t, 2, m.DosesPerDay)
	assert.Equal(t, 60, m.OriginalTotalPills)
	assert.Equal(t, 30, m.OriginalDurationDays)
	assert.Equal(t, 1, m.PillsPerDose) // defaulted
	assert.True(t, m.Enable)
	f.medicines.AssertExpectations(t)
}

func TestCreate_BadStartDate(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), "user-1", domain.CreateMedicineRequest{
		Name: "Aspirin", Dosage: "100mg", Frequency: "1-0-1",
		StartDate: "01/09/2026", DurationDays: 30, TotalPills: 60,
	})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestGet_WrongOwner(t *testing.T) {
	f := newFixture()
	f.medicines.On("Get", mock.Anything, "med-1").Return(aspirin(), nil)

	_, err := f.svc.Get(context.Background(), "med-1", "someone-else")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUpdate_FrequencyRecountsDoses(t *testing.T) {
	f := newFixture()
	freq := "1-1-1"
	f.medicines.On("Get", mock.Anything, "med-1").Return(aspirin(), nil)
	f.medicines.On("Update", mock.Anything, "med-1", map[string]interface{}{
		"frequency":     "1-1-1",
		"doses_per_day": 3,
	}).Return(nil)

	_, err := f.svc.Update(context.Background(), "med-1", "user-1", domain.UpdateMedicineRequest{Frequency: &freq})
	require.NoError(t, err)
	f.medicines.AssertExpectations(t)
}

func TestMarkTaken_DecrementsPills(t *testing.T) {
	f := newFixture()
	med := aspirin()
	f.medicines.On("Get", mock.Anything, "med-1").Return(med, nil)
	f.users.On("Get", mock.Anything, "user-1").Return(owner(), nil)
	f.doseDays.On("GetOrCreate", mock.Anything, "med-1", "2026-09-01", 2).
		Return(&domain.DoseDayState{MedicineID: "med-1", Date: "2026-09-01", Taken: "0-0", RemindersSent: "0-0"}, nil)
	f.doseDays.On("SetTaken", mock.Anything, "med-1", "2026-09-01", "1-0").Return(nil)
	f.medicines.On("Update", mock.Anything, "med-1", map[string]interface{}{"total_pills": 59}).Return(nil)

	state, err := f.svc.MarkTaken(context.Background(), "med-1", "user-1", "2026-09-01", "1-0")
	require.NoError(t, err)
	assert.Equal(t, "1-0", state.Taken)
	f.medicines.AssertExpectations(t)
	f.doseDays.AssertExpectations(t)
}

func TestMarkTaken_NoNewDosesNoDecrement(t *testing.T) {
	f := newFixture()
	f.medicines.On("Get", mock.Anything, "med-1").Return(aspirin(), nil)
	f.users.On("Get", mock.Anything, "user-1").Return(owner(), nil)
	f.doseDays.On("GetOrCreate", mock.Anything, "med-1", "2026-09-01", 2).
		Return(&domain.DoseDayState{MedicineID: "med-1", Date: "2026-09-01", Taken: "1-0", RemindersSent: "1-0"}, nil)
	f.doseDays.On("SetTaken", mock.Anything, "med-1", "2026-09-01", "1-0").Return(nil)

	_, err := f.svc.MarkTaken(context.Background(), "med-1", "user-1", "2026-09-01", "1-0")
	require.NoError(t, err)
	f.medicines.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkTaken_SanitizesInput(t *testing.T) {
	f := newFixture()
	f.medicines.On("Get", mock.Anything, "med-1").Return(aspirin(), nil)
	f.users.On("Get", mock.Anything, "user-1").Return(owner(), nil)
	f.doseDays.On("GetOrCreate", mock.Anything, "med-1", "2026-09-01", 2).
		Return(&domain.DoseDayState{MedicineID: "med-1", Date: "2026-09-01", Taken: "0-0", RemindersSent: "0-0"}, nil)
	// "x-1-1-1" -> junk flag zeroed, extra flags dropped
	f.doseDays.On("SetTaken", mock.Anything, "med-1", "2026-09-01", "0-1").Return(nil)
	f.medicines.On("Update", mock.Anything, "med-1", map[string]interface{}{"total_pills": 59}).Return(nil)

	state, err := f.svc.MarkTaken(context.Background(), "med-1", "user-1", "2026-09-01", "x-1-1-1")
	require.NoError(t, err)
	assert.Equal(t, "0-1", state.Taken)
}

func TestMarkTaken_LowPillsTriggersRefillAlert(t *testing.T) {
	f := newFixture()
	med := aspirin()
	med.TotalPills = 6
	f.medicines.On("Get", mock.Anything, "med-1").Return(med, nil)
	f.users.On("Get", mock.Anything, "user-1").Return(owner(), nil)
	f.doseDays.On("GetOrCreate", mock.Anything, "med-1", "2026-09-01", 2).
		Return(&domain.DoseDayState{MedicineID: "med-1", Date: "2026-09-01", Taken: "0-0", RemindersSent: "0-0"}, nil)
	f.doseDays.On("SetTaken", mock.Anything, "med-1", "2026-09-01", "1-0").Return(nil)
	f.medicines.On("Update", mock.Anything, "med-1", map[string]interface{}{"total_pills": 5}).Return(nil)
	f.audit.On("Put", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.Type == domain.NotificationTypeRefill && n.UserID == "user-1"
	})).Return(nil)
	f.mailer.On("SendEmail", "u@example.com", "Medicine Refill Needed", mock.AnythingOfType("string")).Return(nil)
	f.medicines.On("Update", mock.Anything, "med-1", map[string]interface{}{"refill_notified": true}).Return(nil)

	_, err := f.svc.MarkTaken(context.Background(), "med-1", "user-1", "2026-09-01", "1-0")
	require.NoError(t, err)
	f.audit.AssertExpectations(t)
	f.mailer.AssertExpectations(t)
	f.medicines.AssertExpectations(t)
}

func TestMarkTaken_RefillAlertFiresOnce(t *testing.T) {
	f := newFixture()
	med := aspirin()
	med.TotalPills = 4
	med.RefillNotified = true
	f.medicines.On("Get", mock.Anything, "med-1").Return(med, nil)
	f.users.On("Get", mock.Anything, "user-1").Return(owner(), nil)
	f.doseDays.On("GetOrCreate", mock.Anything, "med-1", "2026-09-01", 2).
		Return(&domain.DoseDayState{MedicineID: "med-1", Date: "2026-09-01", Taken: "0-0", RemindersSent: "0-0"}, nil)
	f.doseDays.On("SetTaken", mock.Anything, "med-1", "2026-09-01", "1-0").Return(nil)
	f.medicines.On("Update", mock.Anything, "med-1", map[string]interface{}{"total_pills": 3}).Return(nil)

	_, err := f.svc.MarkTaken(context.Background(), "med-1", "user-1", "2026-09-01", "1-0")
	require.NoError(t, err)
	f.audit.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	f.mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkTaken_PillsFloorAtZero(t *testing.T) {
	f := newFixture()
	med := aspirin()
	med.TotalPills = 1
	med.PillsPerDose = 2
	med.RefillNotified = true
	f.medicines.On("Get", mock.Anything, "med-1").Return(med, nil)
	f.users.On("Get", mock.Anything, "user-1").Return(owner(), nil)
	f.doseDays.On("GetOrCreate", mock.Anything, "med-1", "2026-09-01", 2).
		Return(&domain.DoseDayState{MedicineID: "med-1", Date: "2026-09-01", Taken: "0-0", RemindersSent: "0-0"}, nil)
	f.doseDays.On("SetTaken", mock.Anything, "med-1", "2026-09-01", "1-1").Return(nil)
	f.medicines.On("Update", mock.Anything, "med-1", map[string]interface{}{"total_pills": 0}).Return(nil)

	_, err := f.svc.MarkTaken(context.Background(), "med-1", "user-1", "2026-09-01", "1-1")
	require.NoError(t, err)
	f.medicines.AssertExpectations(t)
}

func TestRefill_RestoresBaselinesAndClearsHistory(t *testing.T) {
	f := newFixture()
	med := aspirin()
	med.TotalPills = 2
	med.DurationDays = 3
	med.RefillNotified = true
	f.medicines.On("Get", mock.Anything, "med-1").Return(med, nil)
	f.medicines.On("Update", mock.Anything, "med-1", map[string]interface{}{
		"duration_days":   30,
		"total_pills":     60,
		"refill_notified": false,
	}).Return(nil)
	f.doseDays.On("DeleteByMedicine", mock.Anything, "med-1").Return(nil)

	_, err := f.svc.Refill(context.Background(), "med-1", "user-1")
	require.NoError(t, err)
	f.medicines.AssertExpectations(t)
	f.doseDays.AssertExpectations(t)
}

func TestDelete(t *testing.T) {
	f := newFixture()
	f.medicines.On("Get", mock.Anything, "med-1").Return(aspirin(), nil)
	f.medicines.On("SoftDelete", mock.Anything, "med-1").Return(nil)

	err := f.svc.Delete(context.Background(), "med-1", "user-1")
	require.NoError(t, err)
	f.medicines.AssertExpectations(t)
}
