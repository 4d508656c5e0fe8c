package monitor

import "time"

// Status is the last observed reachability of the backing stores.
type Status struct {
	PostgreSQL bool      `json:"postgresql"`
	Redis      bool      `json:"redis"`
	Outbox     bool      `json:"audit_outbox"`
	OutboxSize int       `json:"audit_outbox_size"`
	LastCheck  time.Time `json:"last_check"`
}
