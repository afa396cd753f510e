// Package schema declares the logical streamkit schema: the six table
// names with their optional namespace, and the per-backend DDL.
package schema

// Names resolves fully-qualified table names under the optional schema
// namespace.
type Names struct {
	Level      string
	Topic      string
	Host       string
	Message    string
	Subscriber string
	Access     string
}

// For builds the name set for a schema namespace; empty means unqualified.
func For(schema string) Names {
	prefix := ""
	if schema != "" {
		prefix = schema + "."
	}
	return Names{
		Level:      prefix + "level",
		Topic:      prefix + "topic",
		Host:       prefix + "host",
		Message:    prefix + "message",
		Subscriber: prefix + "subscriber",
		Access:     prefix + "access",
	}
}
