package cqrs

import (
	"encoding/json"
	"time"
)

// RawEvent is the wire level unit stored by an EventStoreAdapter. ID is
// assigned by the store and is an opaque ordering token, only the store
// is expected to compare two of them. A RawEvent is immutable once
// stored.
type RawEvent struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Source   string          `json:"source"`
	Subject  string          `json:"subject"`
	Time     time.Time       `json:"time"`
	Data     json.RawMessage `json:"data"`
	Metadata Metadata        `json:"metadata,omitempty"`
}

// EventToPublish is a RawEvent in waiting, the store assigns ID and Time
// when it is appended.
type EventToPublish struct {
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Subject       string          `json:"subject"`
	Data          json.RawMessage `json:"data"`
	Metadata      Metadata        `json:"metadata,omitempty"`
	Preconditions []Precondition  `json:"preconditions,omitempty"`
}
