package s3

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/knnlm/blobstore"
)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ blobstore.CommitLog = (*DDBCommitLog)(nil)

// DDBCommitLog implements blobstore.CommitLog on a DynamoDB table.
//
// Table schema:
//   - Partition key: sweep_id (string) - one sweep run
//   - Sort key: sweep_point (string) - the committed key
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name knnlm-sweeps \
//	  --attribute-definitions AttributeName=sweep_id,AttributeType=S AttributeName=sweep_point,AttributeType=S \
//	  --key-schema AttributeName=sweep_id,KeyType=HASH AttributeName=sweep_point,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitLog struct {
	client  DDBClient
	table   string
	sweepID string
}

// NewDDBCommitLog creates a commit log for one sweep run.
func NewDDBCommitLog(client DDBClient, table, sweepID string) *DDBCommitLog {
	return &DDBCommitLog{client: client, table: table, sweepID: sweepID}
}

func (l *DDBCommitLog) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"sweep_id":    &types.AttributeValueMemberS{Value: l.sweepID},
		"sweep_point": &types.AttributeValueMemberS{Value: key},
	}
}

// Commit records key with a conditional put.
func (l *DDBCommitLog) Commit(ctx context.Context, key string) error {
	item := l.itemKey(key)
	item["committed_at"] = &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)}

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(sweep_point)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return blobstore.ErrAlreadyCommitted
		}
		return fmt.Errorf("failed to commit %s to DynamoDB: %w", key, err)
	}
	return nil
}

// Committed reports whether key was recorded.
func (l *DDBCommitLog) Committed(ctx context.Context, key string) (bool, error) {
	resp, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.table),
		Key:            l.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("failed to read %s from DynamoDB: %w", key, err)
	}
	return len(resp.Item) > 0, nil
}

// Keys returns every committed key of the sweep run.
func (l *DDBCommitLog) Keys(ctx context.Context) ([]string, error) {
	var (
		keys  []string
		start map[string]types.AttributeValue
	)
	for {
		resp, err := l.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(l.table),
			KeyConditionExpression: aws.String("sweep_id = :id"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":id": &types.AttributeValueMemberS{Value: l.sweepID},
			},
			ExclusiveStartKey: start,
			ConsistentRead:    aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query DynamoDB: %w", err)
		}
		for _, item := range resp.Items {
			p, ok := item["sweep_point"].(*types.AttributeValueMemberS)
			if !ok {
				return nil, errors.New("invalid sweep_point attribute in DynamoDB")
			}
			keys = append(keys, p.Value)
		}
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		start = resp.LastEvaluatedKey
	}
	sort.Strings(keys)
	return keys, nil
}
