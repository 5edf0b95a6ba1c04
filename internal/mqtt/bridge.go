package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/eventbus"
	"github.com/dokzlo13/markerd/internal/marker"
)

// Presenter receives tags pushed by a remote reader. *input.Presence implements it.
type Presenter interface {
	Present(tag marker.Tag)
}

// Publisher publishes a payload. *Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// tagMessage is the JSON form of a tag message. A bare hex string is accepted too.
type tagMessage struct {
	UID string `json:"uid"`
}

// ParseTagPayload decodes a tag UID from a message body:
// either "04:3d:34:12:36:1e:91" or {"uid":"043d3412361e91"}.
func ParseTagPayload(payload []byte) (marker.Tag, error) {
	body := strings.TrimSpace(string(payload))
	if strings.HasPrefix(body, "{") {
		var msg tagMessage
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			return marker.Tag{}, fmt.Errorf("invalid tag message: %w", err)
		}
		body = msg.UID
	}
	body = strings.Trim(body, `"`)
	return marker.ParseTag(body)
}

// TagHandler returns a handler that forwards every valid tag to p.
func TagHandler(p Presenter) MessageHandler {
	return func(topic string, payload []byte) error {
		tag, err := ParseTagPayload(payload)
		if err != nil {
			return err
		}
		log.Trace().Str("topic", topic).Str("tag", tag.String()).Msg("Tag received")
		p.Present(tag)
		return nil
	}
}

// Bridge mirrors eventbus events onto MQTT topics.
// State snapshots are published in core sequence order; a snapshot older than
// the last one published is dropped so the retained topic never goes stale.
type Bridge struct {
	pub    Publisher
	topics Topics

	stateMu sync.Mutex
	lastSeq uint64
}

// NewBridge creates a bridge publishing through pub.
func NewBridge(pub Publisher, topics Topics) *Bridge {
	return &Bridge{pub: pub, topics: topics}
}

// Register subscribes the bridge to the bus.
func (b *Bridge) Register(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeStateChanged, b.onStateChanged)
	bus.Subscribe(eventbus.EventTypeBulbDispatched, b.onDispatched)
	bus.Subscribe(eventbus.EventTypeTagUnrecognized, b.onUnrecognized)
}

func (b *Bridge) onStateChanged(e eventbus.Event) {
	seq, _ := e.Data["seq"].(uint64)

	// Held across the publish so a slow older snapshot cannot land after a newer one.
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if seq != 0 && seq <= b.lastSeq {
		log.Debug().Uint64("seq", seq).Uint64("last", b.lastSeq).Msg("Dropping stale state snapshot")
		return
	}

	payload, err := json.Marshal(e.Data["state"])
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode state snapshot")
		return
	}
	b.publish(b.topics.State(), payload, true)
	if seq != 0 {
		b.lastSeq = seq
	}
}

func (b *Bridge) onDispatched(e eventbus.Event) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode dispatch result")
		return
	}
	b.publish(b.topics.Dispatch(), payload, false)
}

func (b *Bridge) onUnrecognized(e eventbus.Event) {
	tag, _ := e.Data["tag"].(string)
	b.publish(b.topics.Unrecognized(), []byte(tag), false)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	if err := b.pub.Publish(topic, payload, retained); err != nil {
		log.Debug().Err(err).Str("topic", topic).Msg("MQTT publish failed")
	}
}
