package cqrs

// Command expresses a user intent towards the aggregate found at
// Subject. CommandType is the stable tag handlers are registered against.
type Command interface {
	CommandType() string
	Subject() string
}

// ConditionalCommand may be implemented by commands which carry their
// own SubjectCondition, overriding the one given at registration.
type ConditionalCommand interface {
	Command
	SubjectCondition() SubjectCondition
}
