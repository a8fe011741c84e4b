package queue

import (
	"math"
	"time"

	"barberq/internal/models"
)

// PositionView is the customer-facing projection of a ticket against its
// barber's current chain. It is recomputed on every request and never
// mutates ticket state.
type PositionView struct {
	Ticket models.Ticket `json:"ticket"`
	// ActiveTicketNumber is the label of the ticket currently in the chair,
	// or null when the barber is idle.
	ActiveTicketNumber *string `json:"active_ticket_number"`
	// AheadCount is the number of active tickets for the same barber whose
	// estimated start is strictly earlier.
	AheadCount           int `json:"ahead_count"`
	EstimatedWaitMinutes int `json:"estimated_wait_minutes"`
}

// Project derives the position view for ticket from one committed snapshot
// of its barber's active chain.
func Project(ticket models.Ticket, chain []models.Ticket, now time.Time) PositionView {
	view := PositionView{Ticket: ticket}

	for _, other := range chain {
		if other.Status == models.StatusInProgress {
			number := other.TicketNumber
			view.ActiveTicketNumber = &number
		}
		if other.TicketID == ticket.TicketID || !other.Active() {
			continue
		}
		if ticket.EstimatedStart != nil && other.EstimatedStart != nil &&
			other.EstimatedStart.Before(*ticket.EstimatedStart) {
			view.AheadCount++
		}
	}

	if ticket.EstimatedStart != nil && ticket.Active() {
		wait := int(math.Round(ticket.EstimatedStart.Sub(now).Minutes()))
		if wait > 0 {
			view.EstimatedWaitMinutes = wait
		}
	}
	return view
}
