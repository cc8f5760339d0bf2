package appointment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// Single-table layout:
//
//	APPT#<id>               META     appointment record
//	SLOT#<service>#<date>   <HH:MM>  live slot claim, holds appointmentId
//	QUEUE#<service>#<date>  COUNTER  atomic queue counter
//
// GSIs: byCitizen (citizenId, citizenSort) and byDay (dayKey, timeSlot).
const (
	dynamoMetaSK       = "META"
	dynamoCounterSK    = "COUNTER"
	dynamoCitizenIndex = "byCitizen"
	dynamoDayIndex     = "byDay"
	dynamoTimeLayout   = "2006-01-02T15:04:05.000000000Z07:00"
)

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type dynamoReschedule struct {
	OldDate     string `dynamodbav:"oldDate"`
	OldTimeSlot string `dynamodbav:"oldTimeSlot"`
	NewDate     string `dynamodbav:"newDate"`
	NewTimeSlot string `dynamodbav:"newTimeSlot"`
	Reason      string `dynamodbav:"reason,omitempty"`
	ActorID     string `dynamodbav:"actorId"`
	ActorRole   string `dynamodbav:"actorRole"`
	At          string `dynamodbav:"at"`
}

type dynamoAppointment struct {
	PK                 string             `dynamodbav:"pk"`
	SK                 string             `dynamodbav:"sk"`
	ID                 string             `dynamodbav:"id"`
	CitizenID          string             `dynamodbav:"citizenId"`
	CitizenSort        string             `dynamodbav:"citizenSort"`
	ServiceID          string             `dynamodbav:"serviceId"`
	DayKey             string             `dynamodbav:"dayKey"`
	OfficerID          string             `dynamodbav:"officerId,omitempty"`
	Date               string             `dynamodbav:"date"`
	TimeSlot           string             `dynamodbav:"timeSlot"`
	Status             string             `dynamodbav:"status"`
	Priority           string             `dynamodbav:"priority"`
	QueueNumber        *int               `dynamodbav:"queueNumber,omitempty"`
	EstimatedWait      *int               `dynamodbav:"estimatedWait,omitempty"`
	Notes              string             `dynamodbav:"notes,omitempty"`
	CancellationReason *string            `dynamodbav:"cancellationReason,omitempty"`
	History            []dynamoReschedule `dynamodbav:"history"`
	ConfirmedAt        string             `dynamodbav:"confirmedAt,omitempty"`
	CompletedAt        string             `dynamodbav:"completedAt,omitempty"`
	CancelledAt        string             `dynamodbav:"cancelledAt,omitempty"`
	CreatedAt          string             `dynamodbav:"createdAt"`
	UpdatedAt          string             `dynamodbav:"updatedAt"`
}

// DynamoRepository stores appointments in one DynamoDB table. Slot
// uniqueness comes from conditional puts of claim items inside write
// transactions. Queue numbers come from an atomic per-day counter, so
// they follow confirmation order and keep gaps left by cancellations.
type DynamoRepository struct {
	client    dynamoAPI
	tableName string
}

func NewDynamoRepository(client dynamoAPI, tableName string) *DynamoRepository {
	if client == nil {
		panic("appointment: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("appointment: table name cannot be empty")
	}
	return &DynamoRepository{client: client, tableName: tableName}
}

func apptKey(id uuid.UUID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: "APPT#" + id.String()},
		"sk": &types.AttributeValueMemberS{Value: dynamoMetaSK},
	}
}

func slotPK(serviceID uuid.UUID, date string) string {
	return "SLOT#" + serviceID.String() + "#" + date
}

func claimKey(serviceID uuid.UUID, date, slot string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: slotPK(serviceID, date)},
		"sk": &types.AttributeValueMemberS{Value: slot},
	}
}

func dayKey(serviceID uuid.UUID, date string) string {
	return serviceID.String() + "#" + date
}

func formatTS(t time.Time) string {
	return t.UTC().Format(dynamoTimeLayout)
}

func formatTSPtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTS(*t)
}

func parseTSPtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dynamoTimeLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func toDynamo(a *Appointment) dynamoAppointment {
	rec := dynamoAppointment{
		PK:                 "APPT#" + a.ID.String(),
		SK:                 dynamoMetaSK,
		ID:                 a.ID.String(),
		CitizenID:          a.CitizenID.String(),
		CitizenSort:        a.DateKey() + "#" + a.TimeSlot,
		ServiceID:          a.ServiceID.String(),
		DayKey:             dayKey(a.ServiceID, a.DateKey()),
		Date:               a.DateKey(),
		TimeSlot:           a.TimeSlot,
		Status:             string(a.Status),
		Priority:           string(a.Priority),
		QueueNumber:        a.QueueNumber,
		EstimatedWait:      a.EstimatedWait,
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
		History:            []dynamoReschedule{},
		ConfirmedAt:        formatTSPtr(a.ConfirmedAt),
		CompletedAt:        formatTSPtr(a.CompletedAt),
		CancelledAt:        formatTSPtr(a.CancelledAt),
		CreatedAt:          formatTS(a.CreatedAt),
		UpdatedAt:          formatTS(a.UpdatedAt),
	}
	if a.OfficerID != nil {
		rec.OfficerID = a.OfficerID.String()
	}
	for _, e := range a.RescheduleHistory {
		rec.History = append(rec.History, toDynamoReschedule(e))
	}
	return rec
}

func toDynamoReschedule(e RescheduleEntry) dynamoReschedule {
	return dynamoReschedule{
		OldDate:     FormatDate(e.OldDate),
		OldTimeSlot: e.OldTimeSlot,
		NewDate:     FormatDate(e.NewDate),
		NewTimeSlot: e.NewTimeSlot,
		Reason:      e.Reason,
		ActorID:     e.ActorID.String(),
		ActorRole:   string(e.ActorRole),
		At:          formatTS(e.At),
	}
}

func (rec dynamoAppointment) toAppointment() (*Appointment, error) {
	var a Appointment
	var err error
	if a.ID, err = uuid.Parse(rec.ID); err != nil {
		return nil, fmt.Errorf("decode id: %w", err)
	}
	if a.CitizenID, err = uuid.Parse(rec.CitizenID); err != nil {
		return nil, fmt.Errorf("decode citizen id: %w", err)
	}
	if a.ServiceID, err = uuid.Parse(rec.ServiceID); err != nil {
		return nil, fmt.Errorf("decode service id: %w", err)
	}
	if rec.OfficerID != "" {
		officer, err := uuid.Parse(rec.OfficerID)
		if err != nil {
			return nil, fmt.Errorf("decode officer id: %w", err)
		}
		a.OfficerID = &officer
	}
	if a.Date, err = time.Parse(DateLayout, rec.Date); err != nil {
		return nil, fmt.Errorf("decode date: %w", err)
	}
	a.TimeSlot = rec.TimeSlot
	a.Status = AppointmentStatus(rec.Status)
	a.Priority = Priority(rec.Priority)
	a.QueueNumber = rec.QueueNumber
	a.EstimatedWait = rec.EstimatedWait
	a.Notes = rec.Notes
	a.CancellationReason = rec.CancellationReason

	if a.ConfirmedAt, err = parseTSPtr(rec.ConfirmedAt); err != nil {
		return nil, fmt.Errorf("decode confirmedAt: %w", err)
	}
	if a.CompletedAt, err = parseTSPtr(rec.CompletedAt); err != nil {
		return nil, fmt.Errorf("decode completedAt: %w", err)
	}
	if a.CancelledAt, err = parseTSPtr(rec.CancelledAt); err != nil {
		return nil, fmt.Errorf("decode cancelledAt: %w", err)
	}
	if a.CreatedAt, err = time.Parse(dynamoTimeLayout, rec.CreatedAt); err != nil {
		return nil, fmt.Errorf("decode createdAt: %w", err)
	}
	if a.UpdatedAt, err = time.Parse(dynamoTimeLayout, rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("decode updatedAt: %w", err)
	}

	for _, h := range rec.History {
		e := RescheduleEntry{
			OldTimeSlot: h.OldTimeSlot,
			NewTimeSlot: h.NewTimeSlot,
			Reason:      h.Reason,
			ActorRole:   Role(h.ActorRole),
		}
		e.OldDate, _ = time.Parse(DateLayout, h.OldDate)
		e.NewDate, _ = time.Parse(DateLayout, h.NewDate)
		e.ActorID, _ = uuid.Parse(h.ActorID)
		e.At, _ = time.Parse(dynamoTimeLayout, h.At)
		a.RescheduleHistory = append(a.RescheduleHistory, e)
	}
	return &a, nil
}

func decodeAppointment(item map[string]types.AttributeValue) (*Appointment, error) {
	var rec dynamoAppointment
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("appointment: failed to decode record: %w", err)
	}
	return rec.toAppointment()
}

// cancelledItems reports which transaction items lost: either their
// condition failed or a concurrent transaction held the same item.
func cancelledItems(err error) (map[int]bool, bool) {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil, false
	}
	failed := make(map[int]bool)
	for i, reason := range tce.CancellationReasons {
		switch aws.ToString(reason.Code) {
		case "ConditionalCheckFailed", "TransactionConflict":
			failed[i] = true
		}
	}
	return failed, true
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (r *DynamoRepository) Insert(ctx context.Context, appt *Appointment) (*Appointment, error) {
	stored := appt.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}

	item, err := attributevalue.MarshalMap(toDynamo(stored))
	if err != nil {
		return nil, fmt.Errorf("appointment: failed to marshal record: %w", err)
	}
	claim := claimKey(stored.ServiceID, stored.DateKey(), stored.TimeSlot)
	claim["appointmentId"] = &types.AttributeValueMemberS{Value: stored.ID.String()}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                claim,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
		},
	})
	if err != nil {
		if failed, ok := cancelledItems(err); ok && failed[0] {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("appointment: failed to persist: %w", err)
	}
	return stored, nil
}

func (r *DynamoRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            apptKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("appointment: failed to fetch: %w", err)
	}
	if out.Item == nil {
		return nil, ErrAppointmentNotFound
	}
	return decodeAppointment(out.Item)
}

func (r *DynamoRepository) HeldSlots(ctx context.Context, serviceID uuid.UUID, date time.Time) ([]string, error) {
	var slots []string
	var start map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: slotPK(serviceID, FormatDate(date))},
			},
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("appointment: failed to query slot claims: %w", err)
		}
		for _, item := range out.Items {
			if sk, ok := item["sk"].(*types.AttributeValueMemberS); ok {
				slots = append(slots, sk.Value)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return slots, nil
		}
		start = out.LastEvaluatedKey
	}
}

// Confirm takes the next number from the day counter and then applies a
// conditional update. A lost race burns the number.
func (r *DynamoRepository) Confirm(ctx context.Context, p ConfirmParams) (*Appointment, error) {
	current, err := r.Get(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusPending {
		return nil, ErrStatusConflict
	}

	n, err := r.nextQueueNumber(ctx, current.ServiceID, current.DateKey())
	if err != nil {
		return nil, err
	}
	wait := EstimateWait(n, p.AvgMinutes)
	ts := formatTS(p.At)

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 apptKey(p.ID),
		ConditionExpression: aws.String("#status = :from"),
		UpdateExpression:    aws.String("SET #status = :to, officerId = :officer, queueNumber = :n, estimatedWait = :wait, confirmedAt = :at, updatedAt = :at"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":from":    &types.AttributeValueMemberS{Value: string(StatusPending)},
			":to":      &types.AttributeValueMemberS{Value: string(StatusConfirmed)},
			":officer": &types.AttributeValueMemberS{Value: p.OfficerID.String()},
			":n":       &types.AttributeValueMemberN{Value: strconv.Itoa(n)},
			":wait":    &types.AttributeValueMemberN{Value: strconv.Itoa(wait)},
			":at":      &types.AttributeValueMemberS{Value: ts},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrStatusConflict
		}
		return nil, fmt.Errorf("appointment: failed to confirm: %w", err)
	}
	return decodeAppointment(out.Attributes)
}

func (r *DynamoRepository) nextQueueNumber(ctx context.Context, serviceID uuid.UUID, date string) (int, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "QUEUE#" + serviceID.String() + "#" + date},
			"sk": &types.AttributeValueMemberS{Value: dynamoCounterSK},
		},
		UpdateExpression: aws.String("ADD nextNumber :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("appointment: failed to increment queue counter: %w", err)
	}
	attr, ok := out.Attributes["nextNumber"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("appointment: queue counter missing from response")
	}
	n, err := strconv.Atoi(attr.Value)
	if err != nil {
		return 0, fmt.Errorf("appointment: bad queue counter %q: %w", attr.Value, err)
	}
	return n, nil
}

func (r *DynamoRepository) Cancel(ctx context.Context, p CancelParams) (*Appointment, error) {
	current, err := r.Get(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	ts := formatTS(p.At)

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:           aws.String(r.tableName),
				Key:                 apptKey(p.ID),
				ConditionExpression: aws.String("#status = :from"),
				UpdateExpression:    aws.String("SET #status = :to, cancellationReason = :reason, cancelledAt = :at, updatedAt = :at REMOVE queueNumber, estimatedWait"),
				ExpressionAttributeNames: map[string]string{
					"#status": "status",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":from":   &types.AttributeValueMemberS{Value: string(p.From)},
					":to":     &types.AttributeValueMemberS{Value: string(StatusCancelled)},
					":reason": &types.AttributeValueMemberS{Value: p.Reason},
					":at":     &types.AttributeValueMemberS{Value: ts},
				},
			}},
			{Delete: &types.Delete{
				TableName:           aws.String(r.tableName),
				Key:                 claimKey(current.ServiceID, current.DateKey(), current.TimeSlot),
				ConditionExpression: aws.String("appointmentId = :id"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":id": &types.AttributeValueMemberS{Value: p.ID.String()},
				},
			}},
		},
	})
	if err != nil {
		if failed, ok := cancelledItems(err); ok && len(failed) > 0 {
			return nil, ErrStatusConflict
		}
		return nil, fmt.Errorf("appointment: failed to cancel: %w", err)
	}
	return r.Get(ctx, p.ID)
}

func (r *DynamoRepository) Complete(ctx context.Context, p CompleteParams) (*Appointment, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 apptKey(p.ID),
		ConditionExpression: aws.String("attribute_exists(pk) AND #status = :from"),
		UpdateExpression:    aws.String("SET #status = :to, officerId = :officer, completedAt = :at, updatedAt = :at"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":from":    &types.AttributeValueMemberS{Value: string(StatusConfirmed)},
			":to":      &types.AttributeValueMemberS{Value: string(StatusCompleted)},
			":officer": &types.AttributeValueMemberS{Value: p.OfficerID.String()},
			":at":      &types.AttributeValueMemberS{Value: formatTS(p.At)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrStatusConflict
		}
		return nil, fmt.Errorf("appointment: failed to complete: %w", err)
	}
	return decodeAppointment(out.Attributes)
}

// Reschedule claims the new slot, moves the record and releases the old
// claim in one transaction.
func (r *DynamoRepository) Reschedule(ctx context.Context, p RescheduleParams) (*Appointment, error) {
	current, err := r.Get(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	entry, err := attributevalue.Marshal([]dynamoReschedule{toDynamoReschedule(p.Entry)})
	if err != nil {
		return nil, fmt.Errorf("appointment: failed to marshal reschedule entry: %w", err)
	}
	newDate := FormatDate(p.NewDate)
	ts := formatTS(p.At)

	newClaim := claimKey(current.ServiceID, newDate, p.NewTimeSlot)
	newClaim["appointmentId"] = &types.AttributeValueMemberS{Value: p.ID.String()}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                newClaim,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
			{Update: &types.Update{
				TableName:           aws.String(r.tableName),
				Key:                 apptKey(p.ID),
				ConditionExpression: aws.String("#status = :from"),
				UpdateExpression: aws.String("SET #status = :to, #date = :date, timeSlot = :slot, dayKey = :day, " +
					"citizenSort = :sort, updatedAt = :at, #history = list_append(if_not_exists(#history, :empty), :entry) " +
					"REMOVE queueNumber, estimatedWait, confirmedAt"),
				ExpressionAttributeNames: map[string]string{
					"#status":  "status",
					"#date":    "date",
					"#history": "history",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":from":  &types.AttributeValueMemberS{Value: string(p.From)},
					":to":    &types.AttributeValueMemberS{Value: string(StatusPending)},
					":date":  &types.AttributeValueMemberS{Value: newDate},
					":slot":  &types.AttributeValueMemberS{Value: p.NewTimeSlot},
					":day":   &types.AttributeValueMemberS{Value: dayKey(current.ServiceID, newDate)},
					":sort":  &types.AttributeValueMemberS{Value: newDate + "#" + p.NewTimeSlot},
					":at":    &types.AttributeValueMemberS{Value: ts},
					":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
					":entry": entry,
				},
			}},
			{Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       claimKey(current.ServiceID, current.DateKey(), current.TimeSlot),
			}},
		},
	})
	if err != nil {
		if failed, ok := cancelledItems(err); ok {
			switch {
			case failed[0]:
				return nil, ErrSlotTaken
			case len(failed) > 0:
				return nil, ErrStatusConflict
			}
		}
		return nil, fmt.Errorf("appointment: failed to reschedule: %w", err)
	}
	return r.Get(ctx, p.ID)
}

func (r *DynamoRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]Appointment, error) {
	var result []Appointment
	var start map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(r.tableName),
			FilterExpression: aws.String("sk = :meta AND #status = :pending AND createdAt < :before"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":meta":    &types.AttributeValueMemberS{Value: dynamoMetaSK},
				":pending": &types.AttributeValueMemberS{Value: string(StatusPending)},
				":before":  &types.AttributeValueMemberS{Value: formatTS(createdBefore)},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("appointment: failed to scan stale pending: %w", err)
		}
		for _, item := range out.Items {
			a, err := decodeAppointment(item)
			if err != nil {
				return nil, err
			}
			result = append(result, *a)
			if limit > 0 && len(result) >= limit {
				return result, nil
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return result, nil
		}
		start = out.LastEvaluatedKey
	}
}

func (r *DynamoRepository) ListByCitizen(ctx context.Context, citizenID uuid.UUID, limit, offset int) ([]Appointment, error) {
	all, err := r.queryIndex(ctx, dynamoCitizenIndex, "citizenId", citizenID.String(), false)
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *DynamoRepository) ListByDay(ctx context.Context, serviceID uuid.UUID, date time.Time) ([]Appointment, error) {
	all, err := r.queryIndex(ctx, dynamoDayIndex, "dayKey", dayKey(serviceID, FormatDate(date)), true)
	if err != nil {
		return nil, err
	}
	live := all[:0]
	for _, a := range all {
		if a.Status.Live() {
			live = append(live, a)
		}
	}
	sortDay(live)
	return live, nil
}

func (r *DynamoRepository) queryIndex(ctx context.Context, index, attr, value string, forward bool) ([]Appointment, error) {
	var result []Appointment
	var start map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String(index),
			KeyConditionExpression: aws.String("#k = :v"),
			ExpressionAttributeNames: map[string]string{
				"#k": attr,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v": &types.AttributeValueMemberS{Value: value},
			},
			ScanIndexForward:  aws.Bool(forward),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("appointment: failed to query %s: %w", index, err)
		}
		for _, item := range out.Items {
			a, err := decodeAppointment(item)
			if err != nil {
				return nil, err
			}
			result = append(result, *a)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return result, nil
		}
		start = out.LastEvaluatedKey
	}
}
