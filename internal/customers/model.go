// Package customers manages the accounts that group styles.
package customers

import "time"

// Customer owns a set of styles.
type Customer struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateRequest is the payload for POST /api/customers.
type CreateRequest struct {
	Code string `json:"code" validate:"required,max=50"`
	Name string `json:"name" validate:"required,max=200"`
}

// ListRequest filters and pages the customer listing.
type ListRequest struct {
	Search  string `json:"search,omitempty"`
	Page    int    `json:"page" validate:"gte=0"`
	PerPage int    `json:"per_page" validate:"gte=0,lte=500"`
}
