package domain

import "time"

// Medicine is one tracked medication for a user. Frequency is a compact
// per-slot encoding like "1-0-1": one 0/1 flag per configured daily reminder
// time, in slot order.
type Medicine struct {
	MedicineID           string    `json:"id" dynamodbav:"medicine_id"`
	UserID               string    `json:"user_id" dynamodbav:"user_id"`
	Name                 string    `json:"name" dynamodbav:"name"`
	Dosage               string    `json:"dosage" dynamodbav:"dosage"`
	Frequency            string    `json:"frequency" dynamodbav:"frequency"`
	StartDate            string    `json:"start_date" dynamodbav:"start_date"` // YYYY-MM-DD
	DurationDays         int       `json:"duration_days" dynamodbav:"duration_days"`
	OriginalDurationDays int       `json:"original_duration_days" dynamodbav:"original_duration_days"`
	TotalPills           int       `json:"total_pills" dynamodbav:"total_pills"`
	OriginalTotalPills   int       `json:"original_total_pills" dynamodbav:"original_total_pills"`
	PillsPerDose         int       `json:"pills_per_dose" dynamodbav:"pills_per_dose"`
	DosesPerDay          int       `json:"doses_per_day" dynamodbav:"doses_per_day"`
	PrescriptionFileID   *string   `json:"prescription_file_id,omitempty" dynamodbav:"prescription_file_id"`
	RefillNotified       bool      `json:"refill_notified" dynamodbav:"refill_notified"`
	Enable               bool      `json:"enable" dynamodbav:"enable"`
	CreatedAt            time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt            time.Time `json:"updated" dynamodbav:"updated_at"`
}

type CreateMedicineRequest struct {
	Name         string `json:"name" validate:"required"`
	Dosage       string `json:"dosage" validate:"required"`
	Frequency    string `json:"frequency" validate:"required"`
	StartDate    string `json:"start_date" validate:"required"` // YYYY-MM-DD
	DurationDays int    `json:"duration_days" validate:"required,min=1"`
	TotalPills   int    `json:"total_pills" validate:"required,min=1"`
	PillsPerDose int    `json:"pills_per_dose" validate:"min=1"`
}

type UpdateMedicineRequest struct {
	Name         *string `json:"name"`
	Dosage       *string `json:"dosage"`
	Frequency    *string `json:"frequency"`
	StartDate    *string `json:"start_date"`
	DurationDays *int    `json:"duration_days"`
	TotalPills   *int    `json:"total_pills"`
	PillsPerDose *int    `json:"pills_per_dose"`
}

type MarkTakenRequest struct {
	Date  string `json:"date" validate:"required"` // YYYY-MM-DD
	Taken string `json:"taken" validate:"required"`
}
