package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/citizen-appointments/internal/appointment"
	"github.com/hackgods/citizen-appointments/internal/auth"
	"github.com/hackgods/citizen-appointments/internal/catalog"
)

func listServicesHandler(cat *catalog.Catalog, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, err := cat.ListServices(r.Context())
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		resp := make([]ServiceResponse, 0, len(services))
		for _, s := range services {
			resp = append(resp, toServiceResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listSlotsHandler(svc *appointment.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serviceID, ok := uuidParam(w, r, "serviceID", "invalid_service_id")
		if !ok {
			return
		}
		date, ok := dateQuery(w, r)
		if !ok {
			return
		}

		slots, err := svc.ListAvailableSlots(r.Context(), serviceID, date)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		if slots == nil {
			slots = []string{}
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			ServiceID: serviceID,
			Date:      appointment.FormatDate(date),
			Slots:     slots,
		})
	}
}

func dayQueueHandler(svc *appointment.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := mustActor(r)
		serviceID, ok := uuidParam(w, r, "serviceID", "invalid_service_id")
		if !ok {
			return
		}
		date, ok := dateQuery(w, r)
		if !ok {
			return
		}

		list, err := svc.DayQueue(r.Context(), serviceID, date, actor)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentListResponse{Appointments: toAppointmentList(list)})
	}
}

func reserveSlotHandler(svc *appointment.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := mustActor(r)

		var req ReserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		var citizenID uuid.UUID
		if req.CitizenID != "" {
			citizenID, err = uuid.Parse(req.CitizenID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_citizen_id", "citizen_id must be a valid UUID")
				return
			}
		}

		date, err := appointment.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_format", err.Error())
			return
		}

		priority, err := appointment.ParsePriority(req.Priority)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_priority", err.Error())
			return
		}

		appt, err := svc.ReserveSlot(r.Context(), appointment.ReserveRequest{
			CitizenID: citizenID,
			ServiceID: serviceID,
			Date:      date,
			TimeSlot:  req.TimeSlot,
			Priority:  priority,
			Notes:     req.Notes,
		}, actor)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := mustActor(r)
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id, actor)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// listAppointmentsHandler lists one citizen's appointments. Citizens always
// get their own; staff must name the citizen with ?citizen_id=.
func listAppointmentsHandler(svc *appointment.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := mustActor(r)
		q := r.URL.Query()

		citizenID := actor.ID
		if raw := q.Get("citizen_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_citizen_id", "citizen_id must be a valid UUID")
				return
			}
			citizenID = id
		} else if actor.IsStaff() {
			writeError(w, http.StatusBadRequest, "missing_citizen_id", "citizen_id is required")
			return
		}

		limit, ok := intQuery(w, q.Get("limit"), "limit")
		if !ok {
			return
		}
		offset, ok := intQuery(w, q.Get("offset"), "offset")
		if !ok {
			return
		}

		list, err := svc.ListCitizenAppointments(r.Context(), citizenID, limit, offset, actor)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentListResponse{
			Appointments: toAppointmentList(list),
			Limit:        limit,
			Offset:       offset,
		})
	}
}

func confirmAppointmentHandler(svc *appointment.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := mustActor(r)
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.Confirm(r.Context(), id, actor)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc *appointment.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := mustActor(r)
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.Complete(r.Context(), id, actor)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := mustActor(r)
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		// body is optional
		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason, actor)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := mustActor(r)
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := appointment.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_format", err.Error())
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, appointment.RescheduleRequest{
			Date:     date,
			TimeSlot: req.TimeSlot,
			Reason:   req.Reason,
		}, actor)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// mustActor reads the caller set by auth.Middleware. Routes using it are
// always mounted behind that middleware.
func mustActor(r *http.Request) appointment.Actor {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		panic("api: handler mounted without auth middleware")
	}
	return actor
}

func uuidParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func dateQuery(w http.ResponseWriter, r *http.Request) (date time.Time, ok bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
		return date, false
	}
	date, err := appointment.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date_format", err.Error())
		return date, false
	}
	return date, true
}

func intQuery(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
