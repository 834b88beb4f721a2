package medicine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/medremind-api/internal/domain"
	"github.com/medremind-api/internal/pkg/id"
)

// lowPillThreshold is the remaining-pill count at which a one-time refill
// alert fires. Reset by the refill operation.
const lowPillThreshold = 5

type MedicineStore interface {
	Put(ctx context.Context, m *domain.Medicine) error
	Get(ctx context.Context, medicineID string) (*domain.Medicine, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Medicine, error)
	Update(ctx context.Context, medicineID string, updates map[string]interface{}) error
	SoftDelete(ctx context.Context, medicineID string) error
}

type DoseDayStore interface {
	GetOrCreate(ctx context.Context, medicineID, date string, doseCount int) (*domain.DoseDayState, error)
	SetTaken(ctx context.Context, medicineID, date, taken string) error
	DeleteByMedicine(ctx context.Context, medicineID string) error
}

type UserStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type AuditStore interface {
	Put(ctx context.Context, n *domain.Notification) error
}

type Mailer interface {
	SendEmail(to, subject, body string) error
}

type Service interface {
	Create(ctx context.Context, userID string, req domain.CreateMedicineRequest) (*domain.Medicine, error)
	Get(ctx context.Context, medicineID, userID string) (*domain.Medicine, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Medicine, error)
	Update(ctx context.Context, medicineID, userID string, req domain.UpdateMedicineRequest) (*domain.Medicine, error)
	Delete(ctx context.Context, medicineID, userID string) error
	// MarkTaken patches the taken sequence for (medicine, date), decrements
	// the pill count for newly-taken doses, and may emit a refill alert.
	// It never touches the reminders_sent sequence.
	MarkTaken(ctx context.Context, medicineID, userID, date, taken string) (*domain.DoseDayState, error)
	// Refill resets duration/pill counters to their original baselines and
	// clears the medicine's dose-day history.
	Refill(ctx context.Context, medicineID, userID string) (*domain.Medicine, error)
}

type ServiceDeps struct {
	MedicineRepo MedicineStore
	DoseDayRepo  DoseDayStore
	UserRepo     UserStore
	AuditRepo    AuditStore
	Mailer       Mailer
}

type service struct {
	medicines MedicineStore
	doseDays  DoseDayStore
	users     UserStore
	audit     AuditStore
	mailer    Mailer
	log       *slog.Logger
}

func NewService(deps ServiceDeps, log *slog.Logger) Service {
	return &service{
		medicines: deps.MedicineRepo,
		doseDays:  deps.DoseDayRepo,
		users:     deps.UserRepo,
		audit:     deps.AuditRepo,
		mailer:    deps.Mailer,
		log:       log,
	}
}

func (s *service) Create(ctx context.Context, userID string, req domain.CreateMedicineRequest) (*domain.Medicine, error) {
	if _, err := time.Parse(domain.DateLayout, req.StartDate); err != nil {
		return nil, fmt.Errorf("invalid start_date: %w", domain.ErrBadRequest)
	}
	pillsPerDose := req.PillsPerDose
	if pillsPerDose < 1 {
		pillsPerDose = 1
	}
	now := time.Now().UTC()
	m := &domain.Medicine{
		MedicineID:           id.New(),
		UserID:               userID,
		Name:                 req.Name,
		Dosage:               req.Dosage,
		Frequency:            req.Frequency,
		StartDate:            req.StartDate,
		DurationDays:         req.DurationDays,
		OriginalDurationDays: req.DurationDays,
		TotalPills:           req.TotalPills,
		OriginalTotalPills:   req.TotalPills,
		PillsPerDose:         pillsPerDose,
		DosesPerDay:          countActiveSlots(req.Frequency),
		Enable:               true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.medicines.Put(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *service) Get(ctx context.Context, medicineID, userID string) (*domain.Medicine, error) {
	return s.getOwned(ctx, medicineID, userID)
}

func (s *service) ListByUser(ctx context.Context, userID string) ([]domain.Medicine, error) {
	return s.medicines.ListByUser(ctx, userID)
}

func (s *service) Update(ctx context.Context, medicineID, userID string, req domain.UpdateMedicineRequest) (*domain.Medicine, error) {
	if _, err := s.getOwned(ctx, medicineID, userID); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Dosage != nil {
		updates["dosage"] = *req.Dosage
	}
	if req.Frequency != nil {
		updates["frequency"] = *req.Frequency
		updates["doses_per_day"] = countActiveSlots(*req.Frequency)
	}
	if req.StartDate != nil {
		if _, err := time.Parse(domain.DateLayout, *req.StartDate); err != nil {
			return nil, fmt.Errorf("invalid start_date: %w", domain.ErrBadRequest)
		}
		updates["start_date"] = *req.StartDate
	}
	if req.DurationDays != nil {
		updates["duration_days"] = *req.DurationDays
	}
	if req.TotalPills != nil {
		updates["total_pills"] = *req.TotalPills
	}
	if req.PillsPerDose != nil {
		updates["pills_per_dose"] = *req.PillsPerDose
	}
	if len(updates) == 0 {
		return s.medicines.Get(ctx, medicineID)
	}
	if err := s.medicines.Update(ctx, medicineID, updates); err != nil {
		return nil, err
	}
	return s.medicines.Get(ctx, medicineID)
}

func (s *service) Delete(ctx context.Context, medicineID, userID string) error {
	if _, err := s.getOwned(ctx, medicineID, userID); err != nil {
		return err
	}
	return s.medicines.SoftDelete(ctx, medicineID)
}

func (s *service) MarkTaken(ctx context.Context, medicineID, userID, date, taken string) (*domain.DoseDayState, error) {
	m, err := s.getOwned(ctx, medicineID, userID)
	if err != nil {
		return nil, err
	}
	day, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %w", domain.ErrBadRequest)
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	settings := u.Settings.Normalized()
	doseCount := len(domain.DoseInstants(m.Frequency, day, settings.ReminderTimes))

	state, err := s.doseDays.GetOrCreate(ctx, medicineID, date, doseCount)
	if err != nil {
		return nil, err
	}

	newTaken := normalizeTaken(taken, doseCount)
	newlyTaken := countNewlyTaken(state.Taken, newTaken)

	if err := s.doseDays.SetTaken(ctx, medicineID, date, newTaken); err != nil {
		return nil, err
	}
	state.Taken = newTaken

	if newlyTaken > 0 {
		if err := s.decrementPills(ctx, m, newlyTaken); err != nil {
			// Pill accounting is bookkeeping; the taken patch already
			// succeeded, so log and return the state.
			s.log.Error("pill decrement failed", "medicine_id", medicineID, "err", err)
		}
	}
	return state, nil
}

func (s *service) Refill(ctx context.Context, medicineID, userID string) (*domain.Medicine, error) {
	m, err := s.getOwned(ctx, medicineID, userID)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"duration_days":   m.OriginalDurationDays,
		"total_pills":     m.OriginalTotalPills,
		"refill_notified": false,
	}
	if err := s.medicines.Update(ctx, medicineID, updates); err != nil {
		return nil, err
	}
	if err := s.doseDays.DeleteByMedicine(ctx, medicineID); err != nil {
		return nil, err
	}
	return s.medicines.Get(ctx, medicineID)
}

func (s *service) getOwned(ctx context.Context, medicineID, userID string) (*domain.Medicine, error) {
	m, err := s.medicines.Get(ctx, medicineID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, fmt.Errorf("medicine belongs to another user: %w", domain.ErrForbidden)
	}
	return m, nil
}

func (s *service) decrementPills(ctx context.Context, m *domain.Medicine, newlyTaken int) error {
	pillsPerDose := m.PillsPerDose
	if pillsPerDose < 1 {
		pillsPerDose = 1
	}
	remaining := m.TotalPills - newlyTaken*pillsPerDose
	if remaining < 0 {
		remaining = 0
	}
	if err := s.medicines.Update(ctx, m.MedicineID, map[string]interface{}{"total_pills": remaining}); err != nil {
		return err
	}
	m.TotalPills = remaining

	if remaining <= lowPillThreshold && !m.RefillNotified {
		s.sendRefillAlert(ctx, m)
	}
	return nil
}

func (s *service) sendRefillAlert(ctx context.Context, m *domain.Medicine) {
	u, err := s.users.Get(ctx, m.UserID)
	if err != nil {
		s.log.Error("refill alert: load user failed", "medicine_id", m.MedicineID, "err", err)
		return
	}
	title := "Medicine Refill Needed"
	message := fmt.Sprintf("%s is running low: %d pills left. Time to refill!", m.Name, m.TotalPills)
	now := time.Now().UTC()
	n := &domain.Notification{
		NotificationID: id.New(),
		UserID:         u.UserID,
		UserEmail:      u.Email,
		Title:          title,
		Message:        message,
		Type:           domain.NotificationTypeRefill,
		MedicineID:     &m.MedicineID,
		MedicineName:   &m.Name,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.audit.Put(ctx, n); err != nil {
		s.log.Error("refill alert: audit record failed", "medicine_id", m.MedicineID, "err", err)
	}
	if err := s.mailer.SendEmail(u.Email, title, message); err != nil {
		s.log.Error("refill alert: email failed", "medicine_id", m.MedicineID, "err", err)
	}
	if err := s.medicines.Update(ctx, m.MedicineID, map[string]interface{}{"refill_notified": true}); err != nil {
		s.log.Error("refill alert: flag update failed", "medicine_id", m.MedicineID, "err", err)
	}
}

// countActiveSlots counts "1" flags in a frequency encoding.
func countActiveSlots(frequency string) int {
	count := 0
	for _, flag := range strings.Split(frequency, "-") {
		if strings.TrimSpace(flag) == "1" {
			count++
		}
	}
	return count
}

// normalizeTaken coerces client input into a doseCount-long sequence of
// 0/1 flags: anything that isn't "1" becomes "0", extra flags are dropped,
// missing flags padded.
func normalizeTaken(taken string, doseCount int) string {
	in := domain.SplitFlags(taken)
	out := make([]string, doseCount)
	for i := range out {
		if i < len(in) && in[i] == domain.FlagDone {
			out[i] = domain.FlagDone
		} else {
			out[i] = domain.FlagUnset
		}
	}
	return strings.Join(out, "-")
}

func countNewlyTaken(oldTaken, newTaken string) int {
	count := 0
	for i, flag := range domain.SplitFlags(newTaken) {
		if flag == domain.FlagDone && domain.FlagAt(oldTaken, i) != domain.FlagDone {
			count++
		}
	}
	return count
}
