package relay

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/roach88/ember/internal/feed"
)

// wireFilter renders f the way relays expect it, with tag filters as
// "#<name>" keys.
func wireFilter(f feed.Filter) map[string]any {
	out := make(map[string]any)
	if len(f.IDs) > 0 {
		out["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		out["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		out["kinds"] = f.Kinds
	}
	if f.Since > 0 {
		out["since"] = f.Since
	}
	if f.Limit > 0 {
		out["limit"] = f.Limit
	}
	for name, values := range f.Tags {
		out["#"+name] = values
	}
	return out
}

// message is one decoded relay frame.
type message struct {
	Label  string
	SubID  string
	Event  feed.Event
	Reason string
}

func decodeMessage(raw []byte) (message, error) {
	if !gjson.ValidBytes(raw) {
		return message{}, fmt.Errorf("frame is not valid JSON")
	}
	frame := gjson.ParseBytes(raw)
	if !frame.IsArray() {
		return message{}, fmt.Errorf("frame is not an array")
	}

	m := message{Label: frame.Get("0").String()}
	switch m.Label {
	case "EVENT":
		m.SubID = frame.Get("1").String()
		ev := frame.Get("2")
		if !ev.IsObject() {
			return message{}, fmt.Errorf("EVENT frame without event object")
		}
		if err := json.Unmarshal([]byte(ev.Raw), &m.Event); err != nil {
			return message{}, fmt.Errorf("decode event: %w", err)
		}
	case "EOSE":
		m.SubID = frame.Get("1").String()
	case "CLOSED":
		m.SubID = frame.Get("1").String()
		m.Reason = frame.Get("2").String()
	case "NOTICE":
		m.Reason = frame.Get("1").String()
	default:
		return message{}, fmt.Errorf("unknown frame label %q", m.Label)
	}
	return m, nil
}
