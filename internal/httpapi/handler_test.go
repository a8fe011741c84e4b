package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"barberq/internal/models"
	"barberq/internal/queue"
	"barberq/internal/store"
)

type fakeQueue struct {
	joinFn     func(ctx context.Context, input queue.JoinInput) (models.Ticket, error)
	callFn     func(ctx context.Context, ticketID string) (models.Ticket, error)
	startFn    func(ctx context.Context, ticketID string) (models.Ticket, error)
	completeFn func(ctx context.Context, ticketID string) (models.Ticket, error)
	cancelFn   func(ctx context.Context, ticketID, reason string) (models.Ticket, error)
	noShowFn   func(ctx context.Context, ticketID, reason string) (models.Ticket, error)
	assignFn   func(ctx context.Context, ticketID, barberID string) (models.Ticket, error)
	statusFn   func(ctx context.Context, ticketID string) (queue.PositionView, error)
	chainFn    func(ctx context.Context, shopID, barberID string) ([]models.Ticket, error)
}

func (f fakeQueue) JoinQueue(ctx context.Context, input queue.JoinInput) (models.Ticket, error) {
	if f.joinFn == nil {
		return models.Ticket{}, nil
	}
	return f.joinFn(ctx, input)
}

func (f fakeQueue) CallTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	if f.callFn == nil {
		return models.Ticket{}, nil
	}
	return f.callFn(ctx, ticketID)
}

func (f fakeQueue) StartTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	if f.startFn == nil {
		return models.Ticket{}, nil
	}
	return f.startFn(ctx, ticketID)
}

func (f fakeQueue) CompleteTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	if f.completeFn == nil {
		return models.Ticket{}, nil
	}
	return f.completeFn(ctx, ticketID)
}

func (f fakeQueue) CancelTicket(ctx context.Context, ticketID, reason string) (models.Ticket, error) {
	if f.cancelFn == nil {
		return models.Ticket{}, nil
	}
	return f.cancelFn(ctx, ticketID, reason)
}

func (f fakeQueue) NoShowTicket(ctx context.Context, ticketID, reason string) (models.Ticket, error) {
	if f.noShowFn == nil {
		return models.Ticket{}, nil
	}
	return f.noShowFn(ctx, ticketID, reason)
}

func (f fakeQueue) AssignBarber(ctx context.Context, ticketID, barberID string) (models.Ticket, error) {
	if f.assignFn == nil {
		return models.Ticket{}, nil
	}
	return f.assignFn(ctx, ticketID, barberID)
}

func (f fakeQueue) PublicStatus(ctx context.Context, ticketID string) (queue.PositionView, error) {
	if f.statusFn == nil {
		return queue.PositionView{}, nil
	}
	return f.statusFn(ctx, ticketID)
}

func (f fakeQueue) BarberChain(ctx context.Context, shopID, barberID string) ([]models.Ticket, error) {
	if f.chainFn == nil {
		return nil, nil
	}
	return f.chainFn(ctx, shopID, barberID)
}

type fakeTicketStore struct {
	store.TicketStore
	servicesFn func(ctx context.Context, shopID string) ([]models.Service, error)
	barbersFn  func(ctx context.Context, shopID string) ([]models.Barber, error)
	outboxFn   func(ctx context.Context, shopID string, after time.Time, limit int) ([]store.OutboxEvent, error)
}

func (f fakeTicketStore) ListServices(ctx context.Context, shopID string) ([]models.Service, error) {
	if f.servicesFn == nil {
		return nil, nil
	}
	return f.servicesFn(ctx, shopID)
}

func (f fakeTicketStore) ListBarbers(ctx context.Context, shopID string) ([]models.Barber, error) {
	if f.barbersFn == nil {
		return nil, nil
	}
	return f.barbersFn(ctx, shopID)
}

func (f fakeTicketStore) ListOutboxEvents(ctx context.Context, shopID string, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if f.outboxFn == nil {
		return nil, nil
	}
	return f.outboxFn(ctx, shopID, after, limit)
}

const (
	shopUUID    = "11111111-1111-1111-1111-111111111111"
	barberUUID  = "22222222-2222-2222-2222-222222222222"
	serviceUUID = "33333333-3333-3333-3333-333333333333"
	ticketUUID  = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
)

func TestJoinQueueSuccess(t *testing.T) {
	q := fakeQueue{
		joinFn: func(ctx context.Context, input queue.JoinInput) (models.Ticket, error) {
			return models.Ticket{
				TicketID:     ticketUUID,
				TicketNumber: "CUT-001",
				Status:       models.StatusWaiting,
			}, nil
		},
	}
	h := NewHandler(q, fakeTicketStore{})

	payload := map[string]string{
		"shop_id":    shopUUID,
		"barber_id":  barberUUID,
		"service_id": serviceUUID,
		"guest_name": "Sam",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/queue/join", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}

	var ticket models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ticket.TicketNumber != "CUT-001" || ticket.Status != models.StatusWaiting {
		t.Fatalf("unexpected ticket response: %+v", ticket)
	}
}

func TestJoinQueueMissingFields(t *testing.T) {
	h := NewHandler(fakeQueue{}, fakeTicketStore{})

	payload := map[string]string{"shop_id": shopUUID}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/queue/join", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestJoinQueueRequiresIdentity(t *testing.T) {
	h := NewHandler(fakeQueue{}, fakeTicketStore{})

	payload := map[string]string{
		"shop_id":    shopUUID,
		"service_id": serviceUUID,
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/queue/join", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestJoinQueueServiceNotFound(t *testing.T) {
	q := fakeQueue{
		joinFn: func(ctx context.Context, input queue.JoinInput) (models.Ticket, error) {
			return models.Ticket{}, store.ErrServiceNotFound
		},
	}
	h := NewHandler(q, fakeTicketStore{})

	payload := map[string]string{
		"shop_id":    shopUUID,
		"service_id": serviceUUID,
		"guest_name": "Sam",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/queue/join", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
	assertErrorCode(t, resp, "service_not_found")
}

func TestTicketActionRoutes(t *testing.T) {
	cases := []struct {
		action string
		body   string
	}{
		{"call", ""},
		{"start", ""},
		{"complete", ""},
		{"cancel", `{"reason":"left"}`},
		{"no-show", ""},
	}

	for _, tt := range cases {
		q := fakeQueue{
			callFn: func(ctx context.Context, ticketID string) (models.Ticket, error) {
				return models.Ticket{TicketID: ticketID, Status: models.StatusCalled}, nil
			},
			startFn: func(ctx context.Context, ticketID string) (models.Ticket, error) {
				return models.Ticket{TicketID: ticketID, Status: models.StatusInProgress}, nil
			},
			completeFn: func(ctx context.Context, ticketID string) (models.Ticket, error) {
				return models.Ticket{TicketID: ticketID, Status: models.StatusDone}, nil
			},
			cancelFn: func(ctx context.Context, ticketID, reason string) (models.Ticket, error) {
				if reason != "left" {
					t.Fatalf("cancel reason not forwarded, got %q", reason)
				}
				return models.Ticket{TicketID: ticketID, Status: models.StatusCanceled}, nil
			},
			noShowFn: func(ctx context.Context, ticketID, reason string) (models.Ticket, error) {
				return models.Ticket{TicketID: ticketID, Status: models.StatusNoShow}, nil
			},
		}
		h := NewHandler(q, fakeTicketStore{})

		req := httptest.NewRequest(http.MethodPost, "/api/tickets/"+ticketUUID+"/actions/"+tt.action, bytes.NewReader([]byte(tt.body)))
		resp := httptest.NewRecorder()

		h.Routes().ServeHTTP(resp, req)

		if resp.Code != http.StatusOK {
			t.Fatalf("action %s: expected status 200, got %d", tt.action, resp.Code)
		}
	}
}

func TestAssignActionRequiresBarber(t *testing.T) {
	h := NewHandler(fakeQueue{}, fakeTicketStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/"+ticketUUID+"/actions/assign", bytes.NewReader([]byte(`{}`)))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestUnknownActionNotFound(t *testing.T) {
	h := NewHandler(fakeQueue{}, fakeTicketStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/"+ticketUUID+"/actions/promote", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestInvalidTransitionMapsToConflict(t *testing.T) {
	q := fakeQueue{
		completeFn: func(ctx context.Context, ticketID string) (models.Ticket, error) {
			return models.Ticket{}, queue.ErrInvalidTransition
		},
	}
	h := NewHandler(q, fakeTicketStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/"+ticketUUID+"/actions/complete", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	assertErrorCode(t, resp, "invalid_transition")
}

func TestCoordinatorBusyMapsToServiceUnavailable(t *testing.T) {
	q := fakeQueue{
		startFn: func(ctx context.Context, ticketID string) (models.Ticket, error) {
			return models.Ticket{}, queue.ErrCoordinatorBusy
		},
	}
	h := NewHandler(q, fakeTicketStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/"+ticketUUID+"/actions/start", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.Code)
	}
	assertErrorCode(t, resp, "coordinator_busy")
}

func TestClientCancelNotAServerError(t *testing.T) {
	q := fakeQueue{
		startFn: func(ctx context.Context, ticketID string) (models.Ticket, error) {
			return models.Ticket{}, context.Canceled
		},
	}
	h := NewHandler(q, fakeTicketStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/"+ticketUUID+"/actions/start", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != statusClientClosedRequest {
		t.Fatalf("expected status 499, got %d", resp.Code)
	}
	assertErrorCode(t, resp, "request_canceled")
}

func TestTicketStatusSuccess(t *testing.T) {
	number := "CUT-004"
	q := fakeQueue{
		statusFn: func(ctx context.Context, ticketID string) (queue.PositionView, error) {
			return queue.PositionView{
				Ticket:               models.Ticket{TicketID: ticketID, Status: models.StatusWaiting},
				ActiveTicketNumber:   &number,
				AheadCount:           2,
				EstimatedWaitMinutes: 45,
			}, nil
		},
	}
	h := NewHandler(q, fakeTicketStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/"+ticketUUID+"/status", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var view queue.PositionView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.AheadCount != 2 || view.EstimatedWaitMinutes != 45 {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestTicketStatusNotFound(t *testing.T) {
	q := fakeQueue{
		statusFn: func(ctx context.Context, ticketID string) (queue.PositionView, error) {
			return queue.PositionView{}, store.ErrTicketNotFound
		},
	}
	h := NewHandler(q, fakeTicketStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/"+ticketUUID+"/status", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestBarberQueueSuccess(t *testing.T) {
	q := fakeQueue{
		chainFn: func(ctx context.Context, shopID, barberID string) ([]models.Ticket, error) {
			return []models.Ticket{{TicketID: ticketUUID}}, nil
		},
	}
	h := NewHandler(q, fakeTicketStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/barbers/"+barberUUID+"/queue?shop_id="+shopUUID, nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestBarberQueueMissingShop(t *testing.T) {
	h := NewHandler(fakeQueue{}, fakeTicketStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/barbers/"+barberUUID+"/queue", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestListServicesSuccess(t *testing.T) {
	st := fakeTicketStore{
		servicesFn: func(ctx context.Context, shopID string) ([]models.Service, error) {
			return []models.Service{{ServiceID: serviceUUID, Name: "Haircut"}}, nil
		},
	}
	h := NewHandler(fakeQueue{}, st)

	req := httptest.NewRequest(http.MethodGet, "/api/services?shop_id="+shopUUID, nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestListEventsValidatesAfter(t *testing.T) {
	h := NewHandler(fakeQueue{}, fakeTicketStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/events?shop_id="+shopUUID+"&after=not-a-time", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func assertErrorCode(t *testing.T, resp *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if body.Error.Code != want {
		t.Fatalf("expected error code %q, got %q", want, body.Error.Code)
	}
}
