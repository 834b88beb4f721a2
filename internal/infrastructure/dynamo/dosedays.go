package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/medremind-api/internal/domain"
)

// DoseDayRepo provides typed DynamoDB operations for the dose_days table,
// keyed by (medicine_id, date). The taken and reminders_sent sequences are
// always patched as individual attributes so the scheduler and concurrent
// user mark-taken requests cannot clobber each other's field.
type DoseDayRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewDoseDayRepo(client *dynamodb.Client, tableName string) *DoseDayRepo {
	return &DoseDayRepo{client: client, tableName: tableName}
}

func (r *DoseDayRepo) Get(ctx context.Context, medicineID, date string) (*domain.DoseDayState, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("medicine_id", medicineID, "date", date),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("dose day not found: %w", domain.ErrNotFound)
	}
	var s domain.DoseDayState
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOrCreate returns the state for (medicineID, date), lazily creating it
// with doseCount unset flags per sequence. Creation uses a conditional put,
// so two callers racing on the same key both end up reading the same record.
func (r *DoseDayRepo) GetOrCreate(ctx context.Context, medicineID, date string, doseCount int) (*domain.DoseDayState, error) {
	s, err := r.Get(ctx, medicineID, date)
	if err == nil {
		return s, nil
	}

	fresh := domain.NewDoseDayState(medicineID, date, doseCount, time.Now().UTC())
	item, err := attributevalue.MarshalMap(fresh)
	if err != nil {
		return nil, fmt.Errorf("marshal dose day: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(medicine_id)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			// Lost the race; the other writer's record wins.
			return r.Get(ctx, medicineID, date)
		}
		return nil, err
	}
	return fresh, nil
}

// SetTaken patches only the taken sequence.
func (r *DoseDayRepo) SetTaken(ctx context.Context, medicineID, date, taken string) error {
	return r.patch(ctx, medicineID, date, map[string]interface{}{fieldTaken: taken})
}

// SetRemindersSent patches only the reminders_sent sequence.
func (r *DoseDayRepo) SetRemindersSent(ctx context.Context, medicineID, date, remindersSent string) error {
	return r.patch(ctx, medicineID, date, map[string]interface{}{fieldRemindersSent: remindersSent})
}

// DeleteByMedicine removes every dose-day record for a medicine. Only the
// explicit refill reset goes through here.
func (r *DoseDayRepo) DeleteByMedicine(ctx context.Context, medicineID string) error {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("medicine_id = :mid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":mid": &types.AttributeValueMemberS{Value: medicineID},
		},
	})
	if err != nil {
		return err
	}
	for _, item := range out.Items {
		dateAttr, ok := item["date"].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(r.tableName),
			Key:       compositeKey("medicine_id", medicineID, "date", dateAttr.Value),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *DoseDayRepo) patch(ctx context.Context, medicineID, date string, updates map[string]interface{}) error {
	updates[fieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339)
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey("medicine_id", medicineID, "date", date),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}
