package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/medremind-api/internal/domain"
)

// MedicineRepo provides typed DynamoDB operations for the medicines table.
type MedicineRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewMedicineRepo(client *dynamodb.Client, tableName string) *MedicineRepo {
	return &MedicineRepo{client: client, tableName: tableName}
}

func (r *MedicineRepo) Put(ctx context.Context, m *domain.Medicine) error {
	item, err := attributevalue.MarshalMap(m)
	if err != nil {
		return fmt.Errorf("marshal medicine: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *MedicineRepo) Get(ctx context.Context, medicineID string) (*domain.Medicine, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("medicine_id", medicineID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("medicine not found: %w", domain.ErrNotFound)
	}
	var m domain.Medicine
	if err := attributevalue.UnmarshalMap(out.Item, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByUser queries the user_id GSI for a user's enabled medicines.
func (r *MedicineRepo) ListByUser(ctx context.Context, userID string) ([]domain.Medicine, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		FilterExpression:       aws.String("#en = :t"),
		ExpressionAttributeNames: map[string]string{
			"#en": fieldEnable,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
			":t":   &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return nil, err
	}
	var medicines []domain.Medicine
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &medicines); err != nil {
		return nil, err
	}
	return medicines, nil
}

// ListActive scans for every enabled medicine across all users. The
// scheduler calls this once per tick as its point-in-time snapshot.
func (r *MedicineRepo) ListActive(ctx context.Context) ([]domain.Medicine, error) {
	var medicines []domain.Medicine
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(r.tableName),
			FilterExpression: aws.String("#en = :t"),
			ExpressionAttributeNames: map[string]string{
				"#en": fieldEnable,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":t": &types.AttributeValueMemberBOOL{Value: true},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}
		var page []domain.Medicine
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		medicines = append(medicines, page...)
		if out.LastEvaluatedKey == nil {
			return medicines, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (r *MedicineRepo) Update(ctx context.Context, medicineID string, updates map[string]interface{}) error {
	updates[fieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339)
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("medicine_id", medicineID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

func (r *MedicineRepo) SoftDelete(ctx context.Context, medicineID string) error {
	return r.Update(ctx, medicineID, map[string]interface{}{fieldEnable: false})
}
