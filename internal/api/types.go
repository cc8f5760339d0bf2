package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/citizen-appointments/internal/appointment"
	"github.com/hackgods/citizen-appointments/internal/catalog"
)

type ReserveRequest struct {
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
	TimeSlot  string `json:"time_slot"`
	Priority  string `json:"priority,omitempty"`
	Notes     string `json:"notes,omitempty"`
	CitizenID string `json:"citizen_id,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type RescheduleRequest struct {
	Date     string `json:"date"`
	TimeSlot string `json:"time_slot"`
	Reason   string `json:"reason,omitempty"`
}

type RescheduleEntryResponse struct {
	OldDate     string    `json:"old_date"`
	OldTimeSlot string    `json:"old_time_slot"`
	NewDate     string    `json:"new_date"`
	NewTimeSlot string    `json:"new_time_slot"`
	Reason      string    `json:"reason,omitempty"`
	ActorID     uuid.UUID `json:"actor_id"`
	ActorRole   string    `json:"actor_role"`
	At          time.Time `json:"at"`
}

type AppointmentResponse struct {
	ID                   uuid.UUID                 `json:"id"`
	CitizenID            uuid.UUID                 `json:"citizen_id"`
	ServiceID            uuid.UUID                 `json:"service_id"`
	OfficerID            *uuid.UUID                `json:"officer_id,omitempty"`
	Date                 string                    `json:"date"`
	TimeSlot             string                    `json:"time_slot"`
	Status               string                    `json:"status"`
	Priority             string                    `json:"priority"`
	QueueNumber          *int                      `json:"queue_number,omitempty"`
	EstimatedWaitMinutes *int                      `json:"estimated_wait_minutes,omitempty"`
	Notes                string                    `json:"notes,omitempty"`
	CancellationReason   *string                   `json:"cancellation_reason,omitempty"`
	RescheduleHistory    []RescheduleEntryResponse `json:"reschedule_history"`
	ConfirmedAt          *time.Time                `json:"confirmed_at,omitempty"`
	CompletedAt          *time.Time                `json:"completed_at,omitempty"`
	CancelledAt          *time.Time                `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time                 `json:"created_at"`
	UpdatedAt            time.Time                 `json:"updated_at"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit,omitempty"`
	Offset       int                   `json:"offset,omitempty"`
}

type SlotsResponse struct {
	ServiceID uuid.UUID `json:"service_id"`
	Date      string    `json:"date"`
	Slots     []string  `json:"slots"`
}

type WindowResponse struct {
	Weekday     string `json:"weekday"`
	Start       string `json:"start"`
	End         string `json:"end"`
	SlotMinutes int    `json:"slot_minutes,omitempty"`
}

type ServiceResponse struct {
	ID                    uuid.UUID        `json:"id"`
	Name                  string           `json:"name"`
	Department            string           `json:"department"`
	Category              string           `json:"category"`
	FeeCents              int64            `json:"fee_cents"`
	RequiredDocuments     []string         `json:"required_documents"`
	SlotMinutes           int              `json:"slot_minutes"`
	AverageServiceMinutes int              `json:"average_service_minutes"`
	Windows               []WindowResponse `json:"windows"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                   a.ID,
		CitizenID:            a.CitizenID,
		ServiceID:            a.ServiceID,
		OfficerID:            a.OfficerID,
		Date:                 a.DateKey(),
		TimeSlot:             a.TimeSlot,
		Status:               string(a.Status),
		Priority:             string(a.Priority),
		QueueNumber:          a.QueueNumber,
		EstimatedWaitMinutes: a.EstimatedWait,
		Notes:                a.Notes,
		CancellationReason:   a.CancellationReason,
		RescheduleHistory:    make([]RescheduleEntryResponse, 0, len(a.RescheduleHistory)),
		ConfirmedAt:          a.ConfirmedAt,
		CompletedAt:          a.CompletedAt,
		CancelledAt:          a.CancelledAt,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
	for _, e := range a.RescheduleHistory {
		resp.RescheduleHistory = append(resp.RescheduleHistory, RescheduleEntryResponse{
			OldDate:     appointment.FormatDate(e.OldDate),
			OldTimeSlot: e.OldTimeSlot,
			NewDate:     appointment.FormatDate(e.NewDate),
			NewTimeSlot: e.NewTimeSlot,
			Reason:      e.Reason,
			ActorID:     e.ActorID,
			ActorRole:   string(e.ActorRole),
			At:          e.At,
		})
	}
	return resp
}

func toAppointmentList(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i]))
	}
	return out
}

func toServiceResponse(s catalog.ServiceDefinition) ServiceResponse {
	resp := ServiceResponse{
		ID:                    s.ID,
		Name:                  s.Name,
		Department:            s.Department,
		Category:              string(s.Category),
		FeeCents:              s.FeeCents,
		RequiredDocuments:     s.RequiredDocuments,
		SlotMinutes:           s.SlotMinutes,
		AverageServiceMinutes: s.AverageMinutes(),
		Windows:               make([]WindowResponse, 0, len(s.Windows)),
	}
	if resp.RequiredDocuments == nil {
		resp.RequiredDocuments = []string{}
	}
	for _, w := range s.Windows {
		resp.Windows = append(resp.Windows, WindowResponse{
			Weekday:     w.Weekday.String(),
			Start:       w.Start,
			End:         w.End,
			SlotMinutes: w.SlotMinutes,
		})
	}
	return resp
}
