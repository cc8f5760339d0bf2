package awsclient

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/citizen-appointments/internal/config"
)

func TestResolverRoutesPerService(t *testing.T) {
	r := resolver(config.Config{DynamoEndpoint: "http://dynamodb:8000"})

	ep, err := r.ResolveEndpoint(dynamodb.ServiceID, "eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "http://dynamodb:8000", ep.URL)
	assert.Equal(t, "eu-west-1", ep.SigningRegion)

	_, err = r.ResolveEndpoint(sqs.ServiceID, "eu-west-1")
	var notFound *aws.EndpointNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestLoadConfigUsesStaticCredentialsForEmulators(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")

	awsCfg, err := LoadConfig(context.Background(), config.Config{
		AWSRegion:   "us-east-1",
		SQSEndpoint: "http://localstack:4566",
	})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", awsCfg.Region)

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "local", creds.AccessKeyID)
	assert.NotNil(t, NewSQS(awsCfg))
	assert.NotNil(t, NewDynamo(awsCfg))
}
