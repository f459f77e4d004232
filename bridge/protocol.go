// CLAUDE:SUMMARY Typed websocket protocol between the browser host and an engine session.
// Package bridge is the host boundary: one websocket per document session,
// typed JSON request/response messages in, notifications out. No shared
// mutable state crosses it; the host describes gestures, the engine answers
// with what happened.
package bridge

import (
	"encoding/json"

	"github.com/bakharlabs/blurshield/locator"
	"github.com/bakharlabs/blurshield/mark"
)

// Message is the wire envelope. Requests carry an ID the response echoes;
// notifications have no ID.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Request types, host → engine.
const (
	TypeSetMode  = "set_mode"
	TypeClick    = "click"
	TypePress    = "press"
	TypeMove     = "move"
	TypeRelease  = "release"
	TypeSelect   = "select"
	TypeClearAll = "clear_all"
	TypeSaveNow  = "save_now"
	TypeExport   = "export"
	TypeStatus   = "status"
)

// Notification types, engine → host.
const (
	TypeModeChanged = "mode_changed"
	TypeSummary     = "summary"
	TypeCommitted   = "mark_committed"
	TypeRemoved     = "mark_removed"
	TypeUpgrade     = "upgrade_required"
	TypeError       = "error"
)

// SetModePayload requests an interaction mode.
type SetModePayload struct {
	Mode string `json:"mode"`
}

// GesturePayload carries one pointer gesture. Click and the draw protocol
// use X/Y in document coordinates; click and erase also carry the locator
// of the node under the pointer, synthesized host-side.
type GesturePayload struct {
	Locator *locator.PathDescriptor `json:"locator,omitempty"`
	X       float64                 `json:"x"`
	Y       float64                 `json:"y"`
}

// SelectPayload describes a text selection: the leaf-holding elements by
// locator, with rune offsets into their first text child.
type SelectPayload struct {
	Start       *locator.PathDescriptor `json:"start"`
	StartOffset int                     `json:"start_offset"`
	End         *locator.PathDescriptor `json:"end"`
	EndOffset   int                     `json:"end_offset"`
}

// ModeChangedPayload notifies a transition.
type ModeChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CommittedPayload carries a newly stored mark.
type CommittedPayload struct {
	Mark *mark.Mark `json:"mark"`
}

// RemovedPayload names an erased mark.
type RemovedPayload struct {
	MarkID string `json:"mark_id"`
}

// SavePayload is the explicit-save response: saved means the outer tiers
// took the set now, queued means the remote save failed and was handed to
// the retry queue.
type SavePayload struct {
	Saved  bool   `json:"saved"`
	Queued bool   `json:"queued"`
	Error  string `json:"error,omitempty"`
}

// StatusPayload answers a status request and doubles as the summary
// notification body.
type StatusPayload struct {
	Identity string       `json:"identity"`
	Mode     string       `json:"mode"`
	Disabled bool         `json:"disabled"`
	Summary  mark.Summary `json:"summary"`
}

// ExportPayload returns the shielded document rendered to markdown.
type ExportPayload struct {
	Markdown string `json:"markdown"`
}

// NewRequest builds a request envelope with a marshaled payload.
func NewRequest(msgType, id string, payload any) (*Message, error) {
	m := &Message{Type: msgType, ID: id}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		m.Payload = raw
	}
	return m, nil
}

// NewNotification builds a push envelope. Marshal failures degrade to an
// error message rather than a dropped notification.
func NewNotification(msgType string, payload any) *Message {
	raw, err := json.Marshal(payload)
	if err != nil {
		return &Message{Type: TypeError, Error: err.Error()}
	}
	return &Message{Type: msgType, Payload: raw}
}

// Reply builds the response to req, echoing its ID.
func Reply(req *Message, payload any) (*Message, error) {
	m := &Message{Type: req.Type, ID: req.ID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		m.Payload = raw
	}
	return m, nil
}

// ReplyError builds an error response to req.
func ReplyError(req *Message, err error) *Message {
	return &Message{Type: TypeError, ID: req.ID, Error: err.Error()}
}
