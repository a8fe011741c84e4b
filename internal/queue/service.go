package queue

import (
	"context"
	"log/slog"
	"time"

	"barberq/internal/models"
	"barberq/internal/store"
)

const (
	EventCreated     = "ticket.created"
	EventCalled      = "ticket.called"
	EventStarted     = "ticket.started"
	EventDone        = "ticket.done"
	EventCanceled    = "ticket.canceled"
	EventNoShow      = "ticket.no_show"
	EventAssigned    = "ticket.assigned"
	EventRescheduled = "ticket.rescheduled"
)

// Catalog resolves a service id to its expected duration in minutes.
type Catalog interface {
	DurationMinutes(ctx context.Context, serviceID string) (int, error)
}

// ChangeEvent is fanned out after every committed mutation, once per ticket
// whose row changed.
type ChangeEvent struct {
	Type       string        `json:"type"`
	Ticket     models.Ticket `json:"ticket"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Publisher fans ticket change events out to subscribers. Fire-and-forget:
// implementations log failures instead of surfacing them into the mutation
// path.
type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent)
}

// Service owns the apply-mutation-then-recalculate boundary for every barber
// chain. All writes to estimated_start/estimated_end flow through here.
type Service struct {
	store   store.TicketStore
	catalog Catalog
	coord   *Coordinator
	bus     Publisher
	log     *slog.Logger
	now     func() time.Time
}

type ServiceOptions struct {
	// Clock overrides the wall clock, for tests.
	Clock func() time.Time
}

func NewService(st store.TicketStore, catalog Catalog, coord *Coordinator, bus Publisher, log *slog.Logger, options ServiceOptions) *Service {
	now := options.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:   st,
		catalog: catalog,
		coord:   coord,
		bus:     bus,
		log:     log,
		now:     now,
	}
}

type JoinInput struct {
	ShopID     string
	BarberID   string
	ServiceID  string
	UserID     string
	GuestName  string
	GuestPhone string
}

// JoinQueue creates a waiting ticket at the end of the barber's line. With no
// barber requested the ticket stays unassigned and carries no estimates until
// AssignBarber binds it.
func (s *Service) JoinQueue(ctx context.Context, input JoinInput) (models.Ticket, error) {
	minutes, err := s.catalog.DurationMinutes(ctx, input.ServiceID)
	if err != nil {
		return models.Ticket{}, err
	}

	if input.BarberID == "" {
		ticket, err := s.store.CreateTicket(ctx, store.CreateTicketInput{
			ShopID:     input.ShopID,
			ServiceID:  input.ServiceID,
			UserID:     input.UserID,
			GuestName:  input.GuestName,
			GuestPhone: input.GuestPhone,
			CreatedAt:  s.now(),
		})
		if err != nil {
			return models.Ticket{}, err
		}
		s.publish(ctx, EventCreated, ticket)
		return ticket, nil
	}

	var result models.Ticket
	err = s.coord.Submit(ctx, input.BarberID, func(ctx context.Context) error {
		chain, err := s.store.ListActiveByBarber(ctx, input.ShopID, input.BarberID)
		if err != nil {
			return err
		}

		// Relayout the existing chain first: the append then lands on fresh
		// estimates, and a failed pass creates no ticket.
		now := s.now()
		recalced, err := s.recalculateAndPersist(ctx, chain, "", now)
		if err != nil {
			return err
		}

		start := PlanJoin(recalced, now)
		end := start.Add(time.Duration(minutes) * time.Minute)
		ticket, err := s.store.CreateTicket(ctx, store.CreateTicketInput{
			ShopID:         input.ShopID,
			BarberID:       input.BarberID,
			ServiceID:      input.ServiceID,
			UserID:         input.UserID,
			GuestName:      input.GuestName,
			GuestPhone:     input.GuestPhone,
			CreatedAt:      now,
			EstimatedStart: &start,
			EstimatedEnd:   &end,
		})
		if err != nil {
			return err
		}
		result = ticket
		s.publish(ctx, EventCreated, result)
		return nil
	})
	if err != nil {
		return models.Ticket{}, err
	}
	return result, nil
}

// CallTicket summons a waiting customer to the chair: waiting -> called.
func (s *Service) CallTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	return s.applyAction(ctx, ticketID, ActionCall, "")
}

// StartTicket begins service: waiting/called -> in_progress, pins actualStart.
// Fails when the barber already has a ticket in progress.
func (s *Service) StartTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	return s.applyAction(ctx, ticketID, ActionStart, "")
}

// CompleteTicket finishes service: in_progress -> done, pins actualEnd.
func (s *Service) CompleteTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	return s.applyAction(ctx, ticketID, ActionComplete, "")
}

// CancelTicket removes a waiting or called ticket; everyone behind it shifts
// earlier by the canceled ticket's duration.
func (s *Service) CancelTicket(ctx context.Context, ticketID, reason string) (models.Ticket, error) {
	return s.applyAction(ctx, ticketID, ActionCancel, reason)
}

// NoShowTicket marks a called or waiting customer who never showed up.
func (s *Service) NoShowTicket(ctx context.Context, ticketID, reason string) (models.Ticket, error) {
	return s.applyAction(ctx, ticketID, ActionNoShow, reason)
}

func (s *Service) applyAction(ctx context.Context, ticketID, action, reason string) (models.Ticket, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !ValidTransition(action, ticket.Status) {
		return models.Ticket{}, ErrInvalidTransition
	}

	if !ticket.Assigned() {
		switch action {
		case ActionCancel, ActionNoShow:
			return s.applyUnassigned(ctx, ticket, action, reason)
		default:
			return models.Ticket{}, ErrUnassigned
		}
	}

	barberID := *ticket.BarberID
	var result models.Ticket
	err = s.coord.Submit(ctx, barberID, func(ctx context.Context) error {
		// Re-fetch inside the barber's slot: the snapshot taken before
		// acquiring it may already be stale.
		fresh, err := s.store.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if !ValidTransition(action, fresh.Status) {
			return ErrInvalidTransition
		}

		chain, err := s.store.ListActiveByBarber(ctx, fresh.ShopID, barberID)
		if err != nil {
			return err
		}
		if action == ActionStart {
			for _, other := range chain {
				if other.TicketID != fresh.TicketID && other.Status == models.StatusInProgress {
					return ErrInvalidTransition
				}
			}
		}

		now := s.now()
		mutated := applyStatus(fresh, action, reason, now)

		next := make([]models.Ticket, 0, len(chain))
		for _, t := range chain {
			if t.TicketID == mutated.TicketID {
				if mutated.Active() {
					next = append(next, mutated)
				}
				continue
			}
			next = append(next, t)
		}

		durations, err := s.durations(ctx, append(next, mutated))
		if err != nil {
			return err
		}
		recalced, changed, err := Recalculate(next, durations, now)
		if err != nil {
			return err
		}
		mutated = pickTicket(recalced, mutated.TicketID, mutated)

		updates := []store.ChainUpdate{actionUpdate(mutated, action, reason)}
		updates = append(updates, rescheduleUpdates(changed, mutated.TicketID)...)
		rows, err := s.store.ApplyChainUpdates(ctx, updates)
		if err != nil {
			return err
		}

		result = pickTicket(rows, mutated.TicketID, mutated)
		s.publish(ctx, eventForAction(action), result)
		s.publishReschedules(ctx, rows, mutated.TicketID)
		return nil
	})
	if err != nil {
		return models.Ticket{}, err
	}
	return result, nil
}

func (s *Service) applyUnassigned(ctx context.Context, ticket models.Ticket, action, reason string) (models.Ticket, error) {
	mutated := applyStatus(ticket, action, reason, s.now())
	rows, err := s.store.ApplyChainUpdates(ctx, []store.ChainUpdate{actionUpdate(mutated, action, reason)})
	if err != nil {
		return models.Ticket{}, err
	}
	result := pickTicket(rows, ticket.TicketID, mutated)
	s.publish(ctx, eventForAction(action), result)
	return result, nil
}

// AssignBarber binds an unassigned waiting ticket to a barber. The ticket
// enters that barber's chain exactly like a fresh join: appended at the end
// and folded into the recalculation.
func (s *Service) AssignBarber(ctx context.Context, ticketID, barberID string) (models.Ticket, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if ticket.Assigned() || !ValidTransition(ActionAssign, ticket.Status) {
		return models.Ticket{}, ErrInvalidTransition
	}

	var result models.Ticket
	err = s.coord.Submit(ctx, barberID, func(ctx context.Context) error {
		fresh, err := s.store.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if fresh.Assigned() || !ValidTransition(ActionAssign, fresh.Status) {
			return ErrInvalidTransition
		}

		chain, err := s.store.ListActiveByBarber(ctx, fresh.ShopID, barberID)
		if err != nil {
			return err
		}

		now := s.now()
		mutated := fresh
		mutated.BarberID = &barberID

		durations, err := s.durations(ctx, append(chain, mutated))
		if err != nil {
			return err
		}
		recalced, changed, err := Recalculate(append(chain, mutated), durations, now)
		if err != nil {
			return err
		}
		mutated = pickTicket(recalced, mutated.TicketID, mutated)

		assignUpdate := store.ChainUpdate{
			TicketID:       mutated.TicketID,
			BarberID:       &barberID,
			EstimatedStart: mutated.EstimatedStart,
			EstimatedEnd:   mutated.EstimatedEnd,
			Event:          EventAssigned,
		}
		updates := []store.ChainUpdate{assignUpdate}
		updates = append(updates, rescheduleUpdates(changed, mutated.TicketID)...)
		rows, err := s.store.ApplyChainUpdates(ctx, updates)
		if err != nil {
			return err
		}

		result = pickTicket(rows, mutated.TicketID, mutated)
		s.publish(ctx, EventAssigned, result)
		s.publishReschedules(ctx, rows, mutated.TicketID)
		return nil
	})
	if err != nil {
		return models.Ticket{}, err
	}
	return result, nil
}

// PublicStatus computes the customer-facing position view from the latest
// committed state. It runs outside the coordinator and never blocks on an
// in-flight mutation.
func (s *Service) PublicStatus(ctx context.Context, ticketID string) (PositionView, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return PositionView{}, err
	}
	var chain []models.Ticket
	if ticket.Assigned() {
		chain, err = s.store.ListActiveByBarber(ctx, ticket.ShopID, *ticket.BarberID)
		if err != nil {
			return PositionView{}, err
		}
	}
	return Project(ticket, chain, s.now()), nil
}

// BarberChain returns the barber's active chain in engine order.
func (s *Service) BarberChain(ctx context.Context, shopID, barberID string) ([]models.Ticket, error) {
	chain, err := s.store.ListActiveByBarber(ctx, shopID, barberID)
	if err != nil {
		return nil, err
	}
	return SortChain(chain), nil
}

// SweepNoShows marks called tickets older than grace as no-shows, each one
// routed through its barber's slot like any other mutation. Returns the
// number of tickets swept.
func (s *Service) SweepNoShows(ctx context.Context, grace time.Duration, batchSize int) (int, error) {
	if grace <= 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	expired, err := s.store.ListExpiredCalled(ctx, s.now().Add(-grace), batchSize)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, ticket := range expired {
		if _, err := s.NoShowTicket(ctx, ticket.TicketID, "no_show_timeout"); err != nil {
			s.log.Warn("no-show sweep skipped ticket", "ticket_id", ticket.TicketID, "error", err)
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *Service) recalculateAndPersist(ctx context.Context, chain []models.Ticket, primaryID string, now time.Time) ([]models.Ticket, error) {
	durations, err := s.durations(ctx, chain)
	if err != nil {
		return nil, err
	}
	recalced, changed, err := Recalculate(chain, durations, now)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return recalced, nil
	}
	updates := make([]store.ChainUpdate, 0, len(changed))
	for _, t := range changed {
		event := EventRescheduled
		if t.TicketID == primaryID {
			// The primary ticket's own event already covers this write.
			event = ""
		}
		updates = append(updates, store.ChainUpdate{
			TicketID:       t.TicketID,
			EstimatedStart: t.EstimatedStart,
			EstimatedEnd:   t.EstimatedEnd,
			Event:          event,
		})
	}
	rows, err := s.store.ApplyChainUpdates(ctx, updates)
	if err != nil {
		return nil, err
	}
	s.publishReschedules(ctx, rows, primaryID)
	for i := range recalced {
		recalced[i] = pickTicket(rows, recalced[i].TicketID, recalced[i])
	}
	return recalced, nil
}

// durations resolves every distinct service in the chain once.
func (s *Service) durations(ctx context.Context, chain []models.Ticket) (DurationFunc, error) {
	cache := make(map[string]int, len(chain))
	for _, t := range chain {
		if _, ok := cache[t.ServiceID]; ok {
			continue
		}
		minutes, err := s.catalog.DurationMinutes(ctx, t.ServiceID)
		if err != nil {
			return nil, err
		}
		cache[t.ServiceID] = minutes
	}
	return func(serviceID string) (int, bool) {
		minutes, ok := cache[serviceID]
		return minutes, ok
	}, nil
}

func (s *Service) publish(ctx context.Context, eventType string, ticket models.Ticket) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, ChangeEvent{Type: eventType, Ticket: ticket, OccurredAt: s.now()})
}

func (s *Service) publishReschedules(ctx context.Context, rows []models.Ticket, primaryID string) {
	for _, row := range rows {
		if row.TicketID == primaryID {
			continue
		}
		s.publish(ctx, EventRescheduled, row)
	}
}

func applyStatus(ticket models.Ticket, action, reason string, now time.Time) models.Ticket {
	mutated := ticket
	mutated.Status = actionStatus[action]
	switch action {
	case ActionCall:
		at := now
		mutated.CalledAt = &at
	case ActionStart:
		at := now
		mutated.ActualStart = &at
	case ActionComplete:
		at := now
		mutated.ActualEnd = &at
	case ActionCancel, ActionNoShow:
		mutated.CancelReason = reason
	}
	return mutated
}

func actionUpdate(mutated models.Ticket, action, reason string) store.ChainUpdate {
	status := mutated.Status
	update := store.ChainUpdate{
		TicketID: mutated.TicketID,
		Status:   &status,
		Event:    eventForAction(action),
	}
	switch action {
	case ActionCall:
		update.CalledAt = mutated.CalledAt
		update.EstimatedStart = mutated.EstimatedStart
		update.EstimatedEnd = mutated.EstimatedEnd
	case ActionStart:
		update.ActualStart = mutated.ActualStart
		update.EstimatedStart = mutated.EstimatedStart
		update.EstimatedEnd = mutated.EstimatedEnd
	case ActionComplete:
		update.ActualEnd = mutated.ActualEnd
	case ActionCancel, ActionNoShow:
		if reason != "" {
			r := reason
			update.CancelReason = &r
		}
	}
	return update
}

func rescheduleUpdates(changed []models.Ticket, primaryID string) []store.ChainUpdate {
	var updates []store.ChainUpdate
	for _, t := range changed {
		if t.TicketID == primaryID {
			continue
		}
		updates = append(updates, store.ChainUpdate{
			TicketID:       t.TicketID,
			EstimatedStart: t.EstimatedStart,
			EstimatedEnd:   t.EstimatedEnd,
			Event:          EventRescheduled,
		})
	}
	return updates
}

func pickTicket(tickets []models.Ticket, ticketID string, fallback models.Ticket) models.Ticket {
	for _, t := range tickets {
		if t.TicketID == ticketID {
			return t
		}
	}
	return fallback
}

func eventForAction(action string) string {
	switch action {
	case ActionCall:
		return EventCalled
	case ActionStart:
		return EventStarted
	case ActionComplete:
		return EventDone
	case ActionCancel:
		return EventCanceled
	case ActionNoShow:
		return EventNoShow
	case ActionAssign:
		return EventAssigned
	default:
		return ""
	}
}
