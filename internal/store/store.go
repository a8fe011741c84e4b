package store

import (
	"context"
	"encoding/json"
	"time"

	"barberq/internal/models"
)

type CreateTicketInput struct {
	ShopID         string
	BarberID       string
	ServiceID      string
	UserID         string
	GuestName      string
	GuestPhone     string
	CreatedAt      time.Time
	EstimatedStart *time.Time
	EstimatedEnd   *time.Time
}

// ChainUpdate is one ticket's share of a recalculated chain. Nil fields are
// left untouched. Event names the outbox event type recorded alongside the
// update ("" suppresses the event).
type ChainUpdate struct {
	TicketID       string
	Status         *string
	BarberID       *string
	CalledAt       *time.Time
	EstimatedStart *time.Time
	EstimatedEnd   *time.Time
	ActualStart    *time.Time
	ActualEnd      *time.Time
	CancelReason   *string
	Event          string
}

type TicketStore interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	// ListActiveByBarber returns the barber's active tickets ordered by
	// estimated start ascending, ties broken by creation time.
	ListActiveByBarber(ctx context.Context, shopID, barberID string) ([]models.Ticket, error)
	ListActiveByShop(ctx context.Context, shopID string) ([]models.Ticket, error)
	// ListExpiredCalled returns called tickets whose called_at is at or
	// before cutoff, oldest first.
	ListExpiredCalled(ctx context.Context, cutoff time.Time, limit int) ([]models.Ticket, error)
	// ApplyChainUpdates persists every update in a single transaction; either
	// all of them land or none do.
	ApplyChainUpdates(ctx context.Context, updates []ChainUpdate) ([]models.Ticket, error)
	GetService(ctx context.Context, serviceID string) (models.Service, error)
	ListServices(ctx context.Context, shopID string) ([]models.Service, error)
	ListBarbers(ctx context.Context, shopID string) ([]models.Barber, error)
	ListOutboxEvents(ctx context.Context, shopID string, after time.Time, limit int) ([]OutboxEvent, error)
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	ShopID    string          `json:"shop_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
