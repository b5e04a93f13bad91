package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qline/internal/models"
	"qline/internal/queue"
	"qline/internal/store"

	"github.com/google/uuid"
)

// Service is the queue engine surface the HTTP layer depends on.
type Service interface {
	Request(ctx context.Context, input queue.RequestInput) (models.Ticket, error)
	CallNext(ctx context.Context, input queue.CallInput) (models.Ticket, error)
	Start(ctx context.Context, input queue.ActionInput) (models.Ticket, error)
	Complete(ctx context.Context, input queue.ActionInput) (models.Ticket, error)
	Cancel(ctx context.Context, input queue.CancelInput) (models.Ticket, error)
	Recall(ctx context.Context, input queue.ActionInput) (models.Ticket, error)
	Ticket(ctx context.Context, ticketID string) (models.Ticket, error)
	Snapshot(ctx context.Context, serviceID string) ([]queue.SnapshotEntry, error)
	Services(ctx context.Context) ([]models.Service, error)
	Counters(ctx context.Context, serviceID string) ([]models.Counter, error)
	SetCounterStatus(ctx context.Context, counterID, status string) (models.Counter, error)
	History(ctx context.Context, ticketID string) ([]models.ActionLog, error)
	Events(ctx context.Context, after store.RelayOffset, limit int) ([]store.OutboxEvent, error)
	Maintenance(ctx context.Context) (store.Maintenance, error)
	SetMaintenance(ctx context.Context, m store.Maintenance) error
}

type Handler struct {
	queue Service
}

func NewHandler(queue Service) *Handler {
	return &Handler{queue: queue}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/tickets", h.handleTickets)
	mux.HandleFunc("/api/tickets/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/tickets/", h.handleTicketSubtree)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/services", h.handleServices)
	mux.HandleFunc("/api/counters", h.handleCounters)
	mux.HandleFunc("/api/counters/", h.handleCounterStatus)
	mux.HandleFunc("/api/events", h.handleEvents)
	mux.HandleFunc("/api/maintenance", h.handleMaintenance)
	return mux
}

type createTicketRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ServiceID string `json:"service_id"`
}

type callNextRequest struct {
	RequestID string `json:"request_id"`
	ServiceID string `json:"service_id"`
	CounterID string `json:"counter_id"`
}

type ticketActionRequest struct {
	RequestID string `json:"request_id"`
	CounterID string `json:"counter_id"`
	UserID    string `json:"user_id"`
}

type counterStatusRequest struct {
	Status string `json:"status"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)

	if req.RequestID == "" || req.UserID == "" || req.ServiceID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "validation_error", "request_id, user_id, and service_id are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.UserID) || !isValidUUID(req.ServiceID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "validation_error", "request_id, user_id, and service_id must be UUIDs")
		return
	}

	ticket, err := h.queue.Request(r.Context(), queue.RequestInput{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		ServiceID: req.ServiceID,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req callNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.CounterID = strings.TrimSpace(req.CounterID)

	if req.RequestID == "" || req.ServiceID == "" || req.CounterID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "validation_error", "request_id, service_id, and counter_id are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.ServiceID) || !isValidUUID(req.CounterID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "validation_error", "request_id, service_id, and counter_id must be UUIDs")
		return
	}

	ticket, err := h.queue.CallNext(r.Context(), queue.CallInput{
		RequestID: req.RequestID,
		ServiceID: req.ServiceID,
		CounterID: req.CounterID,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

// handleTicketSubtree routes GET /api/tickets/{id}, GET
// /api/tickets/{id}/history, and POST /api/tickets/{id}/actions/{action}.
func (h *Handler) handleTicketSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	ticketID := parts[0]
	if !isValidUUID(ticketID) {
		writeError(w, "", http.StatusBadRequest, "validation_error", "ticket_id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1:
		h.handleGetTicket(w, r, ticketID)
	case len(parts) == 2 && parts[1] == "history":
		h.handleTicketHistory(w, r, ticketID)
	case len(parts) == 3 && parts[1] == "actions":
		h.handleTicketAction(w, r, ticketID, parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ticket, err := h.queue.Ticket(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTicketHistory(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	actions, err := h.queue.History(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

func (h *Handler) handleTicketAction(w http.ResponseWriter, r *http.Request, ticketID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ticketActionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.CounterID = strings.TrimSpace(req.CounterID)
	req.UserID = strings.TrimSpace(req.UserID)

	if req.RequestID == "" || !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "validation_error", "request_id must be a UUID")
		return
	}
	if req.CounterID != "" && !isValidUUID(req.CounterID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "validation_error", "counter_id must be a UUID when provided")
		return
	}
	if req.UserID != "" && !isValidUUID(req.UserID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "validation_error", "user_id must be a UUID when provided")
		return
	}

	input := queue.ActionInput{
		RequestID: req.RequestID,
		TicketID:  ticketID,
		CounterID: req.CounterID,
	}

	var (
		ticket models.Ticket
		err    error
	)
	switch action {
	case "start":
		ticket, err = h.queue.Start(r.Context(), input)
	case "complete":
		ticket, err = h.queue.Complete(r.Context(), input)
	case "cancel":
		ticket, err = h.queue.Cancel(r.Context(), queue.CancelInput{
			RequestID: req.RequestID,
			TicketID:  ticketID,
			UserID:    req.UserID,
		})
	case "recall":
		ticket, err = h.queue.Recall(r.Context(), input)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	if serviceID == "" || !isValidUUID(serviceID) {
		writeError(w, "", http.StatusBadRequest, "validation_error", "service_id must be a UUID")
		return
	}

	entries, err := h.queue.Snapshot(r.Context(), serviceID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	services, err := h.queue.Services(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (h *Handler) handleCounters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	if serviceID != "" && !isValidUUID(serviceID) {
		writeError(w, "", http.StatusBadRequest, "validation_error", "service_id must be a UUID when provided")
		return
	}

	counters, err := h.queue.Counters(r.Context(), serviceID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, counters)
}

func (h *Handler) handleCounterStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/counters/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "status" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	counterID := parts[0]
	if !isValidUUID(counterID) {
		writeError(w, "", http.StatusBadRequest, "validation_error", "counter_id must be a UUID")
		return
	}

	var req counterStatusRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	counter, err := h.queue.SetCounterStatus(r.Context(), counterID, strings.TrimSpace(req.Status))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, counter)
}

// handleEvents is the polling fallback for clients without a live
// connection: it pages committed events by (created_at, event_id) cursor.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var after store.RelayOffset
	if afterRaw := strings.TrimSpace(r.URL.Query().Get("after")); afterRaw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, afterRaw)
		if err != nil {
			writeError(w, "", http.StatusBadRequest, "validation_error", "after must be an RFC3339 timestamp")
			return
		}
		after.LastEventTime = parsed
	}
	if afterID := strings.TrimSpace(r.URL.Query().Get("after_id")); afterID != "" {
		if !isValidUUID(afterID) {
			writeError(w, "", http.StatusBadRequest, "validation_error", "after_id must be a UUID")
			return
		}
		after.LastEventID = afterID
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, "", http.StatusBadRequest, "validation_error", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.queue.Events(r.Context(), after, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		m, err := h.queue.Maintenance(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, m)
	case http.MethodPut:
		var m store.Maintenance
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&m); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if err := h.queue.SetMaintenance(r.Context(), m); err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, m)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

// mapError translates the engine error taxonomy to HTTP. The kind string
// doubles as the wire error code so clients can branch without parsing
// messages.
func mapError(err error) (int, string, string) {
	kind := queue.Kind(err)
	message := "internal server error"
	var opErr *queue.Error
	if errors.As(err, &opErr) {
		message = opErr.Message
	}

	switch kind {
	case queue.KindValidation, queue.KindInvalidCounterStatus:
		return http.StatusBadRequest, kind, message
	case queue.KindNotFound:
		return http.StatusNotFound, kind, message
	case queue.KindInvalidTransition, queue.KindCounterMismatch, queue.KindCounterBusy, queue.KindDuplicateTicket:
		return http.StatusConflict, kind, message
	case queue.KindUnavailable:
		return http.StatusServiceUnavailable, kind, message
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
