package cqrs

import "encoding/json"

// UpcastResult is one event produced by an Upcaster, only the type and
// data of the original raw event may change.
type UpcastResult struct {
	Type string
	Data json.RawMessage
}

// Upcaster rewrites stored events into newer shapes. Upcast may return
// zero results to drop an event, or several to split it.
type Upcaster interface {
	CanUpcast(RawEvent) bool
	Upcast(RawEvent) ([]UpcastResult, error)
}
