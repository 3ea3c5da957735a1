package cqrs

// Aggregate is the domain-owned state reconstructed by folding events
// through state rebuilding handlers. The framework never mutates an
// Aggregate, it only replaces the reference with whatever the handlers
// return, so value types are the natural choice.
type Aggregate interface{}
