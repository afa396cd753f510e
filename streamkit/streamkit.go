// Package streamkit is the database-backed publish/subscribe engine.
// Producers write text messages tagged by topic, severity level, and
// originating host; subscribers receive an ordered, at-least-once
// stream of messages resuming from their last acknowledged position.
// Durability and fan-out are delegated entirely to the relational
// backend, so the engines are stateless across restarts.
package streamkit

import (
	"sync"

	"github.com/pkg/errors"
)

// Exit codes for command-line collaborators (sysexits).
const (
	ExitBadConfig    = 78 // ConfigError
	ExitRuntimeError = 70 // StorageError and other runtime failures
	ExitBadArgument  = 65 // validation errors
)

var (
	separatorMu sync.RWMutex
	separator   = "."
)

// SetSeparator replaces the process-wide topic path separator. It must
// be a single character; the default is ".".
func SetSeparator(sep string) error {
	if len(sep) != 1 {
		return errors.Errorf("separator must be a single character, got %q", sep)
	}
	separatorMu.Lock()
	separator = sep
	separatorMu.Unlock()
	return nil
}

// Separator returns the process-wide topic path separator.
func Separator() string {
	separatorMu.RLock()
	defer separatorMu.RUnlock()
	return separator
}
