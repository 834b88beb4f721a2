package sns

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/medremind-api/internal/config"
)

// PushSender sends push notifications via AWS SNS platform endpoints.
// The token is the device's SNS endpoint ARN.
type PushSender interface {
	Send(ctx context.Context, token, title, body string) error
}

type sender struct {
	client *sns.Client
}

func NewSender(cfg *config.Config) (PushSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &sender{client: sns.NewFromConfig(awsCfg)}, nil
}

func (s *sender) Send(ctx context.Context, token, title, body string) error {
	message, err := buildPayload(title, body)
	if err != nil {
		return err
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        &token,
		Message:          &message,
		MessageStructure: strPtr("json"),
	})
	return err
}

// buildPayload wraps title/body into the per-platform JSON SNS expects for
// platform-endpoint publishes.
func buildPayload(title, body string) (string, error) {
	apns, err := json.Marshal(map[string]interface{}{
		"aps": map[string]interface{}{
			"alert": map[string]string{"title": title, "body": body},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal apns payload: %w", err)
	}
	gcm, err := json.Marshal(map[string]interface{}{
		"notification": map[string]string{"title": title, "body": body},
	})
	if err != nil {
		return "", fmt.Errorf("marshal gcm payload: %w", err)
	}
	payload, err := json.Marshal(map[string]string{
		"default": fmt.Sprintf("%s: %s", title, body),
		"APNS":    string(apns),
		"GCM":     string(gcm),
	})
	if err != nil {
		return "", fmt.Errorf("marshal sns payload: %w", err)
	}
	return string(payload), nil
}

func strPtr(s string) *string { return &s }
