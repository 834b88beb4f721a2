package domain

import "time"

// File is prescription-image metadata; the bytes live in S3 under S3Key.
type File struct {
	FileID      string    `json:"id" dynamodbav:"file_id"`
	UserID      string    `json:"user_id" dynamodbav:"user_id"`
	MedicineID  *string   `json:"medicine_id,omitempty" dynamodbav:"medicine_id"`
	Name        string    `json:"name" dynamodbav:"name"`
	S3Key       string    `json:"-" dynamodbav:"s3_key"`
	ContentType string    `json:"content_type" dynamodbav:"content_type"`
	SizeBytes   int64     `json:"size_bytes" dynamodbav:"size_bytes"`
	Enable      bool      `json:"enable" dynamodbav:"enable"`
	CreatedAt   time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated" dynamodbav:"updated_at"`
}
