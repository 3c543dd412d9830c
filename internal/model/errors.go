package model

import "errors"

var (
	// ErrMissingEmail is returned when an order has no billing email. Email is
	// the minimum identity signal required to build an event.
	ErrMissingEmail = errors.New("order has no billing email")
	// ErrOrderNotFound is returned when an order does not exist in the store.
	ErrOrderNotFound = errors.New("order not found")
)

// Result messages surfaced to operators in run summaries and the audit log.
const (
	MsgAlreadySent   = "already_sent"
	MsgMissingConfig = "missing_config"
	MsgMissingEmail  = "missing_email"
	MsgOrderNotFound = "order_not_found"
)
