package wire

import "encoding/json"

// Control is the tagged union carried by a control frame (length < 64):
// either {"Connect":{"flow_id":N}} or {"Disconnect":{"flow_id":N}}.
type Control struct {
	Connect    *FlowID `json:"Connect,omitempty"`
	Disconnect *FlowID `json:"Disconnect,omitempty"`
}

// FlowID wraps the single field carried by each control variant.
type FlowID struct {
	FlowID uint32 `json:"flow_id"`
}

// DecodeControl parses a control frame payload. It returns false for
// malformed JSON or a payload carrying neither recognised key, so the
// caller can drop the frame rather than act on an unknown control key.
func DecodeControl(payload []byte) (Control, bool) {
	var c Control
	if err := json.Unmarshal(payload, &c); err != nil {
		return Control{}, false
	}
	if c.Connect == nil && c.Disconnect == nil {
		return Control{}, false
	}
	return c, true
}
