package protocol

import (
	"github.com/grovetools/cellkernel/internal/daemon/store"
	"github.com/grovetools/cellkernel/pkg/outcome"
)

// EventInitial is the type of the first event on every stream; it carries
// the full state.
const EventInitial = "initial"

// Event is the public form of a store update, sent over SSE and websocket
// streams.
type Event struct {
	Type       string             `json:"update_type"`
	Source     string             `json:"source,omitempty"`
	Phase      store.Phase        `json:"phase,omitempty"`
	CellCount  *int               `json:"cell_count,omitempty"`
	Outcome    *outcome.Outcome   `json:"outcome,omitempty"`
	Session    *store.SessionInfo `json:"session,omitempty"`
	State      *store.State       `json:"state,omitempty"`
	ConfigFile string             `json:"config_file,omitempty"`
}

// InitialEvent wraps a state snapshot.
func InitialEvent(state store.State) *Event {
	return &Event{Type: EventInitial, State: &state}
}

// EventFromUpdate converts a store update. It returns nil for updates
// with an unexpected payload.
func EventFromUpdate(u store.Update) *Event {
	ev := &Event{Type: string(u.Type), Source: u.Source}
	switch u.Type {
	case store.UpdatePhase:
		p, ok := u.Payload.(store.Phase)
		if !ok {
			return nil
		}
		ev.Phase = p
	case store.UpdateCells:
		n, ok := u.Payload.(int)
		if !ok {
			return nil
		}
		ev.CellCount = &n
	case store.UpdateOutcome:
		o, ok := u.Payload.(*outcome.Outcome)
		if !ok {
			return nil
		}
		ev.Outcome = o
	case store.UpdateSessionReset:
		info, ok := u.Payload.(store.SessionInfo)
		if !ok {
			return nil
		}
		ev.Session = &info
	case store.UpdateConfigReload:
		if file, ok := u.Payload.(string); ok {
			ev.ConfigFile = file
		}
	default:
		return nil
	}
	return ev
}
