package models

// Service is read-only reference data owned by the shop. The scheduling
// engine consumes only DurationMinutes.
type Service struct {
	ServiceID       string `json:"service_id"`
	ShopID          string `json:"shop_id"`
	Name            string `json:"name"`
	Code            string `json:"code"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
}

const (
	BarberAvailable = "available"
	BarberOnBreak   = "on_break"
	BarberOffline   = "offline"
)

// Barber status is informational only; it never gates scheduling.
type Barber struct {
	BarberID string `json:"barber_id"`
	ShopID   string `json:"shop_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
}
