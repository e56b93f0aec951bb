// Package queue carries code list change notifications between server
// instances over RabbitMQ so each instance can drop its process-local
// status cache entries.
package queue

import (
	"errors"
	"time"

	"github.com/iliyamo/designer-bridge/internal/model"
)

// CodeChangedExchange is the fanout exchange every instance binds to.
const CodeChangedExchange = "customcode.changed"

// Action names the kind of change.
type Action string

const (
	ActionApplied Action = "applied"
	ActionRemoved Action = "removed"
	ActionCleared Action = "cleared"
)

// CodeChangedEvent is published after a target's code list was written.
// ScriptID is empty when the whole list was cleared.
type CodeChangedEvent struct {
	Origin     string           `json:"origin"`
	TargetType model.TargetType `json:"target_type"`
	TargetID   string           `json:"target_id"`
	ScriptID   string           `json:"script_id,omitempty"`
	Action     Action           `json:"action"`
	ChangedAt  time.Time        `json:"changed_at"`
}

// Validate checks the fields a consumer relies on.
func (e CodeChangedEvent) Validate() error {
	if e.TargetID == "" {
		return errors.New("event has no target id")
	}
	switch e.Action {
	case ActionApplied, ActionRemoved:
		if e.ScriptID == "" {
			return errors.New("event has no script id")
		}
	case ActionCleared:
	default:
		return errors.New("unknown event action " + string(e.Action))
	}
	return nil
}
