package models

import "time"

// Ticket is one customer's place in a barber's queue. Estimates are owned by
// the scheduling engine; actual timestamps are set once and never change.
type Ticket struct {
	TicketID       string     `json:"ticket_id"`
	TicketNumber   string     `json:"ticket_number"`
	ShopID         string     `json:"shop_id,omitempty"`
	BarberID       *string    `json:"barber_id,omitempty"`
	ServiceID      string     `json:"service_id,omitempty"`
	UserID         *string    `json:"user_id,omitempty"`
	GuestName      string     `json:"guest_name,omitempty"`
	GuestPhone     string     `json:"guest_phone,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	CalledAt       *time.Time `json:"called_at,omitempty"`
	EstimatedStart *time.Time `json:"estimated_start,omitempty"`
	EstimatedEnd   *time.Time `json:"estimated_end,omitempty"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`
	CancelReason   string     `json:"cancel_reason,omitempty"`
}

const (
	StatusWaiting    = "waiting"
	StatusCalled     = "called"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusCanceled   = "canceled"
	StatusNoShow     = "no_show"
)

// Active reports whether the ticket still occupies a slot in its barber's chain.
func (t Ticket) Active() bool {
	switch t.Status {
	case StatusWaiting, StatusCalled, StatusInProgress:
		return true
	default:
		return false
	}
}

// Terminal reports whether the ticket reached a final state.
func (t Ticket) Terminal() bool {
	switch t.Status {
	case StatusDone, StatusCanceled, StatusNoShow:
		return true
	default:
		return false
	}
}

// Assigned reports whether the ticket is bound to a barber. An unassigned
// ticket sits outside every chain until an assign action binds it.
func (t Ticket) Assigned() bool {
	return t.BarberID != nil && *t.BarberID != ""
}
