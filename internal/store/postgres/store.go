package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"barberq/internal/models"
	"barberq/internal/store"
)

const ticketNumberPad = 3

const ticketColumns = `ticket_id, ticket_number, shop_id, barber_id, service_id, user_id,
	guest_name, guest_phone, status, created_at, called_at,
	estimated_start, estimated_end, actual_start, actual_end, cancel_reason`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	serviceCode, err := lookupServiceCode(ctx, tx, input.ShopID, input.ServiceID)
	if err != nil {
		return models.Ticket{}, err
	}
	if input.BarberID != "" {
		if err = ensureBarberExists(ctx, tx, input.ShopID, input.BarberID); err != nil {
			return models.Ticket{}, err
		}
	}

	seq, err := nextTicketNumber(ctx, tx, input.ShopID, input.ServiceID)
	if err != nil {
		return models.Ticket{}, err
	}
	formattedNumber := fmt.Sprintf("%s-%0*d", serviceCode, ticketNumberPad, seq)

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO tickets (
			ticket_id, ticket_number, shop_id, barber_id, service_id, user_id,
			guest_name, guest_phone, status, created_at, estimated_start, estimated_end
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING `+ticketColumns+`
	`, uuid.NewString(), formattedNumber, input.ShopID, nullIfEmpty(input.BarberID), input.ServiceID,
		nullIfEmpty(input.UserID), input.GuestName, input.GuestPhone, models.StatusWaiting,
		createdAt, input.EstimatedStart, input.EstimatedEnd)

	ticket, err := scanTicket(row)
	if err != nil {
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket.created", ticket); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE ticket_id = $1
	`, ticketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ListActiveByBarber(ctx context.Context, shopID, barberID string) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE shop_id = $1 AND barber_id = $2 AND status IN ('waiting','called','in_progress')
		ORDER BY estimated_start ASC NULLS LAST, created_at ASC
	`, shopID, barberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (s *Store) ListActiveByShop(ctx context.Context, shopID string) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE shop_id = $1 AND status IN ('waiting','called','in_progress')
		ORDER BY estimated_start ASC NULLS LAST, created_at ASC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (s *Store) ListExpiredCalled(ctx context.Context, cutoff time.Time, limit int) ([]models.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE status = 'called' AND called_at <= $1
		ORDER BY called_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

// ApplyChainUpdates persists one recalculated chain. Every update lands in
// the same transaction, so a missing ticket aborts the whole batch.
func (s *Store) ApplyChainUpdates(ctx context.Context, updates []store.ChainUpdate) ([]models.Ticket, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tickets := make([]models.Ticket, 0, len(updates))
	for _, update := range updates {
		var ticket models.Ticket
		ticket, err = applyUpdate(ctx, tx, update)
		if err != nil {
			return nil, err
		}
		if update.Event != "" {
			if err = insertOutboxEvent(ctx, tx, update.Event, ticket); err != nil {
				return nil, err
			}
		}
		tickets = append(tickets, ticket)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return tickets, nil
}

func applyUpdate(ctx context.Context, tx pgx.Tx, update store.ChainUpdate) (models.Ticket, error) {
	sets := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)
	args = append(args, update.TicketID)

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Status != nil {
		add("status", *update.Status)
	}
	if update.BarberID != nil {
		add("barber_id", *update.BarberID)
	}
	if update.CalledAt != nil {
		add("called_at", *update.CalledAt)
	}
	if update.EstimatedStart != nil {
		add("estimated_start", *update.EstimatedStart)
	}
	if update.EstimatedEnd != nil {
		add("estimated_end", *update.EstimatedEnd)
	}
	if update.ActualStart != nil {
		add("actual_start", *update.ActualStart)
	}
	if update.ActualEnd != nil {
		add("actual_end", *update.ActualEnd)
	}
	if update.CancelReason != nil {
		add("cancel_reason", *update.CancelReason)
	}

	if len(sets) == 0 {
		row := tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1`, update.TicketID)
		ticket, err := scanTicket(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return ticket, err
	}

	query := `UPDATE tickets SET ` + strings.Join(sets, ", ") + `
		WHERE ticket_id = $1
		RETURNING ` + ticketColumns
	ticket, err := scanTicket(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) GetService(ctx context.Context, serviceID string) (models.Service, error) {
	var service models.Service
	row := s.pool.QueryRow(ctx, `
		SELECT service_id, shop_id, name, code, duration_minutes, price_cents
		FROM services
		WHERE service_id = $1 AND active = TRUE
	`, serviceID)
	if err := row.Scan(&service.ServiceID, &service.ShopID, &service.Name, &service.Code, &service.DurationMinutes, &service.PriceCents); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	return service, nil
}

func (s *Store) ListServices(ctx context.Context, shopID string) ([]models.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT service_id, shop_id, name, code, duration_minutes, price_cents
		FROM services
		WHERE shop_id = $1 AND active = TRUE
		ORDER BY name ASC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var service models.Service
		if err := rows.Scan(&service.ServiceID, &service.ShopID, &service.Name, &service.Code, &service.DurationMinutes, &service.PriceCents); err != nil {
			return nil, err
		}
		services = append(services, service)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) ListBarbers(ctx context.Context, shopID string) ([]models.Barber, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT barber_id, shop_id, name, status
		FROM barbers
		WHERE shop_id = $1
		ORDER BY name ASC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var barbers []models.Barber
	for rows.Next() {
		var barber models.Barber
		if err := rows.Scan(&barber.BarberID, &barber.ShopID, &barber.Name, &barber.Status); err != nil {
			return nil, err
		}
		barbers = append(barbers, barber)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return barbers, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, shopID string, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, shop_id, type, payload_json, created_at
		FROM outbox_events
		WHERE shop_id = $1 AND created_at > $2
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, shopID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.ShopID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func lookupServiceCode(ctx context.Context, tx pgx.Tx, shopID, serviceID string) (string, error) {
	var code string
	row := tx.QueryRow(ctx, `
		SELECT code
		FROM services
		WHERE service_id = $1 AND shop_id = $2 AND active = TRUE
	`, serviceID, shopID)
	if err := row.Scan(&code); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrServiceNotFound
		}
		return "", err
	}
	return code, nil
}

func ensureBarberExists(ctx context.Context, tx pgx.Tx, shopID, barberID string) error {
	var id string
	row := tx.QueryRow(ctx, `
		SELECT barber_id
		FROM barbers
		WHERE barber_id = $1 AND shop_id = $2
	`, barberID, shopID)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrBarberNotFound
		}
		return err
	}
	return nil
}

func nextTicketNumber(ctx context.Context, tx pgx.Tx, shopID, serviceID string) (int64, error) {
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO ticket_sequences (shop_id, service_id, next_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (shop_id, service_id)
		DO UPDATE SET next_number = ticket_sequences.next_number + 1
		RETURNING next_number
	`, shopID, serviceID)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, ticket models.Ticket) error {
	payloadJSON, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, shop_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), ticket.ShopID, eventType, payloadJSON, time.Now().UTC())
	return err
}

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var barberID sql.NullString
	var userID sql.NullString
	var guestName sql.NullString
	var guestPhone sql.NullString
	var calledAt sql.NullTime
	var estimatedStart sql.NullTime
	var estimatedEnd sql.NullTime
	var actualStart sql.NullTime
	var actualEnd sql.NullTime
	var cancelReason sql.NullString

	if err := row.Scan(&ticket.TicketID, &ticket.TicketNumber, &ticket.ShopID, &barberID,
		&ticket.ServiceID, &userID, &guestName, &guestPhone, &ticket.Status, &ticket.CreatedAt,
		&calledAt, &estimatedStart, &estimatedEnd, &actualStart, &actualEnd, &cancelReason); err != nil {
		return models.Ticket{}, err
	}

	ticket.BarberID = nullStringPtr(barberID)
	ticket.UserID = nullStringPtr(userID)
	if guestName.Valid {
		ticket.GuestName = guestName.String
	}
	if guestPhone.Valid {
		ticket.GuestPhone = guestPhone.String
	}
	ticket.CalledAt = nullTimePtr(calledAt)
	ticket.EstimatedStart = nullTimePtr(estimatedStart)
	ticket.EstimatedEnd = nullTimePtr(estimatedEnd)
	ticket.ActualStart = nullTimePtr(actualStart)
	ticket.ActualEnd = nullTimePtr(actualEnd)
	if cancelReason.Valid {
		ticket.CancelReason = cancelReason.String
	}
	return ticket, nil
}

func collectTickets(rows pgx.Rows) ([]models.Ticket, error) {
	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
