package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSEnqueuer publishes notifications as JSON messages to an SQS queue.
type SQSEnqueuer struct {
	client   sqsAPI
	queueURL string
}

func NewSQSEnqueuer(client sqsAPI, queueURL string) *SQSEnqueuer {
	if client == nil {
		panic("notify: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("notify: SQS queueURL cannot be empty")
	}
	return &SQSEnqueuer{client: client, queueURL: queueURL}
}

func (q *SQSEnqueuer) Enqueue(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: failed to encode notification: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(n.EventType)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: failed to send SQS message: %w", err)
	}
	return nil
}

// LogEnqueuer only logs notifications. Used when no queue is configured.
type LogEnqueuer struct {
	logger zerolog.Logger
}

func NewLogEnqueuer(logger zerolog.Logger) *LogEnqueuer {
	return &LogEnqueuer{logger: logger}
}

func (l *LogEnqueuer) Enqueue(_ context.Context, n Notification) error {
	l.logger.Info().
		Str("citizen_id", n.CitizenID.String()).
		Str("appointment_id", n.AppointmentID.String()).
		Str("subject", n.Subject).
		Msg(n.Body)
	return nil
}
