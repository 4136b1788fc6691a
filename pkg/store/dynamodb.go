package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoDBStore implements Store over a DynamoDB table with a string
// partition key "Key" and a numeric "Expiration" attribute registered
// as the table's TTL attribute.
type dynamoDBStore struct {
	client    *dynamodb.Client
	tableName string
}

// dynamoDBStoreOptions configures the DynamoDB store.
type dynamoDBStoreOptions struct {
	awsConfig aws.Config
}

// DynamoDBStoreOption is a function that configures the DynamoDB store.
type DynamoDBStoreOption func(*dynamoDBStoreOptions)

// WithDynamoDBAWSConfig sets a custom AWS configuration.
func WithDynamoDBAWSConfig(cfg aws.Config) DynamoDBStoreOption {
	return func(o *dynamoDBStoreOptions) {
		o.awsConfig = cfg
	}
}

// NewDynamoDBStore creates a store over the given DynamoDB table.
func NewDynamoDBStore(tableName string, opts ...DynamoDBStoreOption) (Store, error) {
	options := &dynamoDBStoreOptions{}
	for _, opt := range opts {
		opt(options)
	}

	var cfg aws.Config
	var err error

	if options.awsConfig.Credentials != nil {
		cfg = options.awsConfig
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(context.TODO())
		if err != nil {
			slog.Error("Failed to load AWS config for DynamoDB store", "error", err.Error())
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
	}

	return &dynamoDBStore{
		client:    dynamodb.NewFromConfig(cfg),
		tableName: tableName,
	}, nil
}

func (s *dynamoDBStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, Defaults.Timeout)
	defer cancel()

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"Key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("dynamodb get %q: %w", key, err)
	}
	if result.Item == nil {
		return nil, false, nil
	}

	// DynamoDB TTL deletion lags expiry by up to 48 hours, so the
	// expiration is re-checked on read.
	if expirationAttr, ok := result.Item["Expiration"]; ok {
		if expirationNum, ok := expirationAttr.(*types.AttributeValueMemberN); ok {
			expiration, err := strconv.ParseInt(expirationNum.Value, 10, 64)
			if err == nil && time.Now().Unix() > expiration {
				slog.Debug("DynamoDB store entry expired", "key", key)
				return nil, false, nil
			}
		}
	}

	valueAttr, ok := result.Item["Value"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false, fmt.Errorf("dynamodb item %q has no binary Value attribute", key)
	}

	return valueAttr.Value, true, nil
}

func (s *dynamoDBStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = Defaults.TTL
	}

	ctx, cancel := context.WithTimeout(ctx, Defaults.Timeout)
	defer cancel()

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"Key":        &types.AttributeValueMemberS{Value: key},
			"Value":      &types.AttributeValueMemberB{Value: value},
			"Expiration": &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Add(ttl).Unix(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb put %q: %w", key, err)
	}
	return nil
}

func (s *dynamoDBStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, Defaults.Timeout)
	defer cancel()

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"Key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb delete %q: %w", key, err)
	}
	return nil
}
