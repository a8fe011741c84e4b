package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"barberq/internal/models"
	"barberq/internal/queue"
	"barberq/internal/store"
)

// QueueService is the slice of the queue facade the HTTP layer depends on.
type QueueService interface {
	JoinQueue(ctx context.Context, input queue.JoinInput) (models.Ticket, error)
	CallTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	StartTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	CompleteTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	CancelTicket(ctx context.Context, ticketID, reason string) (models.Ticket, error)
	NoShowTicket(ctx context.Context, ticketID, reason string) (models.Ticket, error)
	AssignBarber(ctx context.Context, ticketID, barberID string) (models.Ticket, error)
	PublicStatus(ctx context.Context, ticketID string) (queue.PositionView, error)
	BarberChain(ctx context.Context, shopID, barberID string) ([]models.Ticket, error)
}

type Handler struct {
	queue QueueService
	store store.TicketStore
}

func NewHandler(queueService QueueService, ticketStore store.TicketStore) *Handler {
	return &Handler{queue: queueService, store: ticketStore}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/queue/join", h.handleJoin)
	mux.HandleFunc("/api/tickets/", h.handleTickets)
	mux.HandleFunc("/api/barbers", h.handleBarbers)
	mux.HandleFunc("/api/barbers/", h.handleBarberQueue)
	mux.HandleFunc("/api/services", h.handleServices)
	mux.HandleFunc("/api/events", h.handleEvents)
	return mux
}

type joinRequest struct {
	ShopID     string `json:"shop_id"`
	BarberID   string `json:"barber_id"`
	ServiceID  string `json:"service_id"`
	UserID     string `json:"user_id"`
	GuestName  string `json:"guest_name"`
	GuestPhone string `json:"guest_phone"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type assignRequest struct {
	BarberID string `json:"barber_id"`
}

type errorResponse struct {
	Error responseError `json:"error"`
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

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req joinRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.ShopID = strings.TrimSpace(req.ShopID)
	req.BarberID = strings.TrimSpace(req.BarberID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.GuestName = strings.TrimSpace(req.GuestName)
	req.GuestPhone = strings.TrimSpace(req.GuestPhone)

	if req.ShopID == "" || req.ServiceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "shop_id and service_id are required")
		return
	}
	if !isValidUUID(req.ShopID) || !isValidUUID(req.ServiceID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "shop_id and service_id must be UUIDs")
		return
	}
	if req.BarberID != "" && !isValidUUID(req.BarberID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "barber_id must be a UUID when provided")
		return
	}
	if req.UserID != "" && !isValidUUID(req.UserID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id must be a UUID when provided")
		return
	}
	if req.UserID == "" && req.GuestName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id or guest_name is required")
		return
	}
	if req.GuestPhone != "" && !isValidPhone(req.GuestPhone) {
		writeError(w, http.StatusBadRequest, "invalid_request", "guest_phone must be 8-16 digits")
		return
	}

	ticket, err := h.queue.JoinQueue(r.Context(), queue.JoinInput{
		ShopID:     req.ShopID,
		BarberID:   req.BarberID,
		ServiceID:  req.ServiceID,
		UserID:     req.UserID,
		GuestName:  req.GuestName,
		GuestPhone: req.GuestPhone,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

// handleTickets covers GET /api/tickets/{id}/status and
// POST /api/tickets/{id}/actions/{action}.
func (h *Handler) handleTickets(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 2 && parts[1] == "status" {
		h.handleTicketStatus(w, r, parts[0])
		return
	}
	if len(parts) == 3 && parts[1] == "actions" {
		h.handleTicketAction(w, r, parts[0], parts[2])
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *Handler) handleTicketStatus(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(ticketID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket_id must be a UUID")
		return
	}

	view, err := h.queue.PublicStatus(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleTicketAction(w http.ResponseWriter, r *http.Request, ticketID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(ticketID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket_id must be a UUID")
		return
	}

	var (
		ticket models.Ticket
		err    error
	)
	switch action {
	case "call":
		ticket, err = h.queue.CallTicket(r.Context(), ticketID)
	case "start":
		ticket, err = h.queue.StartTicket(r.Context(), ticketID)
	case "complete":
		ticket, err = h.queue.CompleteTicket(r.Context(), ticketID)
	case "cancel":
		var req reasonRequest
		if !decodeOptional(w, r, &req) {
			return
		}
		ticket, err = h.queue.CancelTicket(r.Context(), ticketID, strings.TrimSpace(req.Reason))
	case "no-show":
		var req reasonRequest
		if !decodeOptional(w, r, &req) {
			return
		}
		ticket, err = h.queue.NoShowTicket(r.Context(), ticketID, strings.TrimSpace(req.Reason))
	case "assign":
		var req assignRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.BarberID = strings.TrimSpace(req.BarberID)
		if req.BarberID == "" || !isValidUUID(req.BarberID) {
			writeError(w, http.StatusBadRequest, "invalid_request", "barber_id must be a UUID")
			return
		}
		ticket, err = h.queue.AssignBarber(r.Context(), ticketID, req.BarberID)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// handleBarberQueue covers GET /api/barbers/{id}/queue.
func (h *Handler) handleBarberQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/barbers/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "queue" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	barberID := parts[0]
	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "shop_id is required")
		return
	}
	if !isValidUUID(shopID) || !isValidUUID(barberID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "shop_id and barber_id must be UUIDs")
		return
	}

	tickets, err := h.queue.BarberChain(r.Context(), shopID, barberID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleBarbers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" || !isValidUUID(shopID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "shop_id must be a UUID")
		return
	}

	barbers, err := h.store.ListBarbers(r.Context(), shopID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, barbers)
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" || !isValidUUID(shopID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "shop_id must be a UUID")
		return
	}

	services, err := h.store.ListServices(r.Context(), shopID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" || !isValidUUID(shopID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "shop_id must be a UUID")
		return
	}

	afterRaw := strings.TrimSpace(r.URL.Query().Get("after"))
	var after time.Time
	if afterRaw != "" {
		parsed, err := time.Parse(time.RFC3339, afterRaw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "after must be RFC3339 timestamp")
			return
		}
		after = parsed
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.store.ListOutboxEvents(r.Context(), shopID, after, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// decodeOptional decodes a JSON body, treating an empty body as the zero
// value. Actions like cancel carry an optional reason.
func decodeOptional(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isValidPhone(value string) bool {
	if len(value) < 8 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

const statusClientClosedRequest = 499

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrShopNotFound):
		return http.StatusNotFound, "shop_not_found", "shop not found"
	case errors.Is(err, store.ErrServiceNotFound):
		return http.StatusNotFound, "service_not_found", "service not found"
	case errors.Is(err, store.ErrBarberNotFound):
		return http.StatusNotFound, "barber_not_found", "barber not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, queue.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "ticket state does not allow this action"
	case errors.Is(err, queue.ErrUnassigned):
		return http.StatusConflict, "unassigned", "ticket has no barber assigned"
	case errors.Is(err, queue.ErrCoordinatorBusy):
		return http.StatusServiceUnavailable, "coordinator_busy", "barber queue is busy, retry shortly"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "coordinator_busy", "barber queue is busy, retry shortly"
	case errors.Is(err, context.Canceled):
		// 499, the nginx client-closed-request convention. The client is
		// gone; nothing failed server-side.
		return statusClientClosedRequest, "request_canceled", "request canceled"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
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
