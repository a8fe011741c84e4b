package store

import "errors"

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrBarberNotFound  = errors.New("barber not found")
	ErrShopNotFound    = errors.New("shop not found")
	ErrTicketNotFound  = errors.New("ticket not found")
)
