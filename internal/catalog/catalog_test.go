package catalog

import (
	"context"
	"errors"
	"testing"

	"barberq/internal/models"
	"barberq/internal/store"
)

type stubStore struct {
	store.TicketStore
	calls    int
	services map[string]models.Service
}

func (s *stubStore) GetService(ctx context.Context, serviceID string) (models.Service, error) {
	s.calls++
	service, ok := s.services[serviceID]
	if !ok {
		return models.Service{}, store.ErrServiceNotFound
	}
	return service, nil
}

func TestDurationMinutesWithoutRedis(t *testing.T) {
	st := &stubStore{services: map[string]models.Service{
		"svc-1": {ServiceID: "svc-1", DurationMinutes: 45},
	}}
	c := New(st, nil, nil, Options{})

	minutes, err := c.DurationMinutes(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if minutes != 45 {
		t.Fatalf("expected 45 minutes, got %d", minutes)
	}
	if st.calls != 1 {
		t.Fatalf("expected one store call, got %d", st.calls)
	}
}

func TestDurationMinutesUnknownService(t *testing.T) {
	st := &stubStore{services: map[string]models.Service{}}
	c := New(st, nil, nil, Options{})

	_, err := c.DurationMinutes(context.Background(), "svc-missing")
	if !errors.Is(err, store.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}
