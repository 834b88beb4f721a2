package domain

import "time"

// Device is a push-token registry entry. The scheduler targets the most
// recently updated enabled device that has a token.
type Device struct {
	DeviceID  string    `json:"id" dynamodbav:"device_id"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	PushToken *string   `json:"push_token" dynamodbav:"push_token"`
	Platform  string    `json:"platform" dynamodbav:"platform"` // "ios" | "android" | "web"
	Enable    bool      `json:"enable" dynamodbav:"enable"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}

type RegisterPushTokenRequest struct {
	PushToken string `json:"push_token" validate:"required"`
	Platform  string `json:"platform" validate:"required,oneof=ios android web"`
}
