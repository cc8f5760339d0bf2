package awsclient

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/hackgods/citizen-appointments/internal/config"
)

// LoadConfig builds the AWS SDK config shared by the DynamoDB repository
// and the SQS notification enqueuer. Endpoint overrides point either
// service at a local emulator.
func LoadConfig(ctx context.Context, cfg config.Config) (aws.Config, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}

	if cfg.DynamoEndpoint != "" || cfg.SQSEndpoint != "" {
		// Emulators do not validate credentials, but the SDK requires them.
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			getenvDefault("AWS_ACCESS_KEY_ID", "local"),
			getenvDefault("AWS_SECRET_ACCESS_KEY", "local"),
			"",
		)))
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver(cfg)))
	}

	return awsconfig.LoadDefaultConfig(ctx, loadOpts...)
}

func resolver(cfg config.Config) aws.EndpointResolverWithOptions {
	return aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
		var url string
		switch service {
		case dynamodb.ServiceID:
			url = cfg.DynamoEndpoint
		case sqs.ServiceID:
			url = cfg.SQSEndpoint
		}
		if url == "" {
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		}
		return aws.Endpoint{URL: url, SigningRegion: region, HostnameImmutable: true}, nil
	})
}

func NewDynamo(awsCfg aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg)
}

func NewSQS(awsCfg aws.Config) *sqs.Client {
	return sqs.NewFromConfig(awsCfg)
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
