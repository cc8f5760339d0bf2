package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/citizen-appointments/internal/events"
)

type mockSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.inputs = append(m.inputs, in)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func event(t events.Type, attrs map[string]string) events.Event {
	return events.New(t, uuid.New(), uuid.New(), uuid.New(), time.Date(2024, 7, 20, 10, 0, 0, 0, time.UTC), attrs)
}

func TestBuildConfirmedIncludesQueueDetails(t *testing.T) {
	ev := event(events.TypeConfirmed, map[string]string{
		"date":                   "2024-07-22",
		"time_slot":              "09:30",
		"queue_number":           "3",
		"estimated_wait_minutes": "40",
	})

	n, err := Build(ev, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Appointment confirmed", n.Subject)
	assert.Equal(t, "Your appointment on 2024-07-22 09:30 is confirmed. Your queue number is 3 with an estimated wait of 40 minutes.", n.Body)
	assert.Equal(t, ev.CitizenID, n.CitizenID)
	assert.Equal(t, ev.ID, n.EventID)
}

func TestBuildCoversEveryEventType(t *testing.T) {
	for _, typ := range []events.Type{
		events.TypeReserved, events.TypeConfirmed, events.TypeCancelled,
		events.TypeRescheduled, events.TypeCompleted, events.TypeExpired,
	} {
		n, err := Build(event(typ, map[string]string{"date": "2024-07-22", "time_slot": "09:00"}), time.Now())
		require.NoError(t, err, typ)
		assert.NotEmpty(t, n.Subject, typ)
		assert.Contains(t, n.Body, "2024-07-22 09:00", typ)
	}

	_, err := Build(event("appointment.deleted", nil), time.Now())
	assert.Error(t, err)
}

func TestBuildRescheduledNamesBothSlots(t *testing.T) {
	n, err := Build(event(events.TypeRescheduled, map[string]string{
		"date":          "2024-07-23",
		"time_slot":     "10:00",
		"old_date":      "2024-07-22",
		"old_time_slot": "09:00",
	}), time.Now())
	require.NoError(t, err)
	assert.Contains(t, n.Body, "from 2024-07-22 09:00 to 2024-07-23 10:00")
}

func TestTriggerSendsToSQS(t *testing.T) {
	client := &mockSQS{}
	trigger := NewTrigger(NewSQSEnqueuer(client, "http://localhost:4566/000000000000/notifications"), zerolog.Nop())

	ev := event(events.TypeCancelled, map[string]string{"date": "2024-07-22", "time_slot": "09:00", "reason": "office closed"})
	require.NoError(t, trigger.Handle(context.Background(), ev))

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "http://localhost:4566/000000000000/notifications", aws.ToString(in.QueueUrl))
	assert.Equal(t, "appointment.cancelled", aws.ToString(in.MessageAttributes["event_type"].StringValue))

	var n Notification
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &n))
	assert.Equal(t, ev.AppointmentID, n.AppointmentID)
	assert.Contains(t, n.Body, "Reason: office closed")
}

func TestTriggerReturnsEnqueueFailure(t *testing.T) {
	client := &mockSQS{err: errors.New("queue does not exist")}
	trigger := NewTrigger(NewSQSEnqueuer(client, "queue"), zerolog.Nop())

	err := trigger.Handle(context.Background(), event(events.TypeReserved, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue does not exist")
}

func TestTriggerSkipsUnknownEvents(t *testing.T) {
	client := &mockSQS{}
	trigger := NewTrigger(NewSQSEnqueuer(client, "queue"), zerolog.Nop())

	require.NoError(t, trigger.Handle(context.Background(), event("appointment.archived", nil)))
	assert.Empty(t, client.inputs)
}

func TestLogEnqueuerWritesBody(t *testing.T) {
	var buf bytes.Buffer
	trigger := NewTrigger(nil, zerolog.New(&buf))

	require.NoError(t, trigger.Handle(context.Background(), event(events.TypeCompleted, map[string]string{"date": "2024-07-22", "time_slot": "11:00"})))
	assert.Contains(t, buf.String(), "Thank you for your visit")
}

func TestNewSQSEnqueuerPanicsOnMissingDeps(t *testing.T) {
	assert.Panics(t, func() { NewSQSEnqueuer(nil, "queue") })
	assert.Panics(t, func() { NewSQSEnqueuer(&mockSQS{}, "") })
}
