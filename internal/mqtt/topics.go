package mqtt

import "strings"

// DefaultPrefix is the root of every markerd topic.
const DefaultPrefix = "markerd"

// Topics builds topic names under a common prefix.
type Topics struct {
	Prefix string
}

func (t Topics) join(parts ...string) string {
	prefix := strings.TrimSuffix(t.Prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "/" + strings.Join(parts, "/")
}

// Tag is where the reader driver publishes presented tag UIDs.
func (t Topics) Tag() string { return t.join("rfid", "tag") }

// State carries the retained DeviceState snapshot.
func (t Topics) State() string { return t.join("state") }

// Dispatch carries one message per bulb command sent.
func (t Topics) Dispatch() string { return t.join("bulb", "dispatch") }

// Unrecognized carries UIDs that matched no marker.
func (t Topics) Unrecognized() string { return t.join("rfid", "unrecognized") }

// Status is the retained online/offline topic, also used as the will.
func (t Topics) Status() string { return t.join("status") }
