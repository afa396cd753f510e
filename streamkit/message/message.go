// Package message defines the Message value object and the publish and
// fetch operations over the message table.
package message

import (
	"fmt"
	"os"
	"time"
)

// localHost is the default origin, captured once at process start.
var localHost = func() string {
	name, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return name
}()

// Hostname returns the default message host.
func Hostname() string { return localHost }

// Message associates content with metadata about its origin and
// context. ID is assigned by the database.
type Message struct {
	ID    int64
	Time  time.Time
	Topic string
	Level string
	Host  string
	Text  string
}

// New builds a message with Time defaulting to UTC now and Host to the
// local hostname.
func New(topic, level, text string) Message {
	return Message{
		Time:  time.Now().UTC(),
		Topic: topic,
		Level: level,
		Host:  localHost,
		Text:  text,
	}
}

// ValidationError reports a missing required field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("message: %s is required", e.Field)
}

// Validate checks the required fields and fills defaults for the rest.
func (m *Message) Validate() error {
	switch {
	case m.Topic == "":
		return &ValidationError{Field: "topic"}
	case m.Level == "":
		return &ValidationError{Field: "level"}
	case m.Text == "":
		return &ValidationError{Field: "text"}
	}
	if m.Time.IsZero() {
		m.Time = time.Now().UTC()
	}
	if m.Host == "" {
		m.Host = localHost
	}
	return nil
}
