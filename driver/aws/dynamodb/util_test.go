package dynamodb_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// newClient returns a client that connects to the DynamoDB instance at
// DOGMATIQ_TEST_DYNAMODB_ENDPOINT, typically DynamoDB Local.
func newClient(t *testing.T) *dynamodb.Client {
	t.Helper()

	endpoint := os.Getenv("DOGMATIQ_TEST_DYNAMODB_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:28000"
	}

	cfg, err := config.LoadDefaultConfig(
		context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("id", "secret", ""),
		),
		config.WithRetryer(
			func() aws.Retryer {
				return aws.NopRetryer{}
			},
		),
	)
	if err != nil {
		t.Fatal(err)
	}

	return dynamodb.NewFromConfig(
		cfg,
		func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		},
	)
}

// deleteTable removes a test table. It tolerates tables that do not exist,
// such as when table creation itself is the behavior under test.
func deleteTable(
	ctx context.Context,
	client *dynamodb.Client,
	table string,
) error {
	_, err := client.DeleteTable(
		ctx,
		&dynamodb.DeleteTableInput{
			TableName: aws.String(table),
		},
	)

	var nf *types.ResourceNotFoundException
	if errors.As(err, &nf) {
		return nil
	}

	return err
}
