package domain

import "time"

// Notification audit record types.
const (
	NotificationTypeReminder   = "reminder"
	NotificationTypeMissedDose = "missed_dose"
	NotificationTypeRefill     = "refill"
	NotificationTypeSystem     = "system"
	NotificationTypeSuccess    = "success"
)

type Notification struct {
	NotificationID string    `json:"id" dynamodbav:"notification_id"`
	UserID         string    `json:"user_id" dynamodbav:"user_id"`
	UserEmail      string    `json:"user_email" dynamodbav:"user_email"`
	Title          string    `json:"title" dynamodbav:"title"`
	Message        string    `json:"message" dynamodbav:"message"`
	Type           string    `json:"type" dynamodbav:"type"`
	MedicineID     *string   `json:"medicine_id,omitempty" dynamodbav:"medicine_id"`
	MedicineName   *string   `json:"medicine_name,omitempty" dynamodbav:"medicine_name"`
	Readed         int       `json:"readed" dynamodbav:"readed"` // legacy field name preserved
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}
