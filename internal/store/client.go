package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// NewDynamoDBClient loads AWS config and returns a DynamoDB client. A custom
// endpoint (local DynamoDB) is honored via AWS_ENDPOINT.
func NewDynamoDBClient(ctx context.Context) (*dynamodb.Client, error) {
	slog.Info("[ContentStore] Initializing AWS Config...")

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(getEnv("AWS_REGION", "us-west-2")))
	if err != nil {
		return nil, fmt.Errorf("[ContentStore] failed to load AWS config: %w", err)
	}

	endpoint := os.Getenv("AWS_ENDPOINT")
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	slog.Info("[ContentStore] DynamoDB client initialized")
	return client, nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
