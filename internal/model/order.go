// Package model defines domain models and data structures.
package model

import "time"

// OrderStatusCompleted is the only status eligible for the backfill candidate query.
const OrderStatusCompleted = "completed"

// Order represents a store order as read from the order store. The relay only
// reads orders; the two writes it performs (tracking metadata and the sent
// marker) go through narrow repository methods.
type Order struct {
	ID               int64       `json:"id"`
	Status           string      `json:"status"`
	BillingEmail     string      `json:"billing_email"`
	BillingPhone     string      `json:"billing_phone"`
	BillingFirstName string      `json:"billing_first_name"`
	BillingLastName  string      `json:"billing_last_name"`
	BillingCity      string      `json:"billing_city"`
	BillingState     string      `json:"billing_state"`
	BillingPostcode  string      `json:"billing_postcode"`
	BillingCountry   string      `json:"billing_country"`
	Total            float64     `json:"total"`
	Currency         string      `json:"currency"`
	PaymentMethod    string      `json:"payment_method"`
	CheckoutURL      string      `json:"checkout_url"`
	Items            []OrderItem `json:"items"`
	Tracking         Tracking    `json:"tracking"`
	CompletedAt      *time.Time  `json:"completed_at"`
	CreatedAt        time.Time   `json:"created_at"`
	SentAt           *time.Time  `json:"sent_at"`
}

// OrderItem is a single line item on an order.
type OrderItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Tracking holds the browser attribution metadata captured at checkout.
type Tracking struct {
	FBP             string `json:"fbp"`
	FBC             string `json:"fbc"`
	FBCLID          string `json:"fbclid"`
	ClientIP        string `json:"client_ip"`
	ClientUserAgent string `json:"client_user_agent"`
}
