package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoBackend.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoConfig holds the configuration for a DynamoDB snapshot table.
type DynamoConfig struct {
	Region    string
	TableName string
	Endpoint  string // optional, e.g. a local DynamoDB
}

// snapshotItem is one row of the snapshot table. The table's partition key
// is the string attribute "stream".
type snapshotItem struct {
	Stream    string `dynamodbav:"stream"`
	Snapshot  string `dynamodbav:"snapshot"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// DynamoBackend stores each snapshot as one item. PutItem replaces the whole
// item in a single request.
type DynamoBackend struct {
	client    DynamoDBAPI
	tableName string
	now       func() time.Time
}

// NewDynamoBackend loads the default AWS configuration and creates a client.
func NewDynamoBackend(ctx context.Context, cfg DynamoConfig) (*DynamoBackend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("NewDynamoBackend: unable to load SDK config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewDynamoBackendWithClient(client, cfg.TableName), nil
}

// NewDynamoBackendWithClient wraps an existing client.
func NewDynamoBackendWithClient(client DynamoDBAPI, tableName string) *DynamoBackend {
	return &DynamoBackend{client: client, tableName: tableName, now: time.Now}
}

func (b *DynamoBackend) Read(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.tableName),
		Key:            map[string]types.AttributeValue{"stream": &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", key, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var item snapshotItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal item %s: %w", key, err)
	}
	return []byte(item.Snapshot), nil
}

func (b *DynamoBackend) Write(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(snapshotItem{
		Stream:    key,
		Snapshot:  string(data),
		UpdatedAt: b.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal item %s: %w", key, err)
	}
	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put item %s: %w", key, err)
	}
	return nil
}

func (b *DynamoBackend) Close() error { return nil }
