package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/markerd/internal/eventbus"
	"github.com/dokzlo13/markerd/internal/marker"
	"github.com/dokzlo13/markerd/internal/state"
)

func TestParseTagPayload(t *testing.T) {
	blue := marker.ToTag(marker.Blue)

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"colon_hex", "04:3d:34:12:36:1e:91", false},
		{"plain_hex_newline", "043d3412361e91\n", false},
		{"quoted", `"043d3412361e91"`, false},
		{"json", `{"uid":"04-3d-34-12-36-1e-91"}`, false},
		{"short", "04:3d", true},
		{"bad_json", `{"uid":`, true},
		{"not_hex", "zz:3d:34:12:36:1e:91", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTagPayload([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.payload)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTagPayload(%q): %v", tt.payload, err)
			}
			if got != blue {
				t.Errorf("got %s, want %s", got, blue)
			}
		})
	}
}

type presenterFunc func(marker.Tag)

func (f presenterFunc) Present(tag marker.Tag) { f(tag) }

func TestTagHandler(t *testing.T) {
	var got []marker.Tag
	h := TagHandler(presenterFunc(func(tag marker.Tag) { got = append(got, tag) }))

	if err := h("markerd/rfid/tag", []byte("04:3d:3c:12:36:1e:91")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if err := h("markerd/rfid/tag", []byte("garbage")); err == nil {
		t.Error("handler should reject garbage")
	}
	if len(got) != 1 || got[0] != marker.ToTag(marker.Red) {
		t.Errorf("presented %v", got)
	}
}

func TestTopics(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{Topics{}.State(), "markerd/state"},
		{Topics{Prefix: "home/desk/"}.Tag(), "home/desk/rfid/tag"},
		{Topics{Prefix: "x"}.Dispatch(), "x/bulb/dispatch"},
		{Topics{}.Status(), "markerd/status"},
		{Topics{}.Unrecognized(), "markerd/rfid/unrecognized"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %s, want %s", tt.got, tt.want)
		}
	}
}

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	got  chan struct{}
}

func (p *recordingPublisher) Publish(topic string, payload []byte, retained bool) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, published{topic, payload, retained})
	p.mu.Unlock()
	p.got <- struct{}{}
	return nil
}

func TestBridge_PublishesRetainedState(t *testing.T) {
	bus := eventbus.NewWithConfig(1, 8)
	defer bus.Close(context.Background())

	pub := &recordingPublisher{got: make(chan struct{}, 8)}
	NewBridge(pub, Topics{}).Register(bus)

	bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeStateChanged,
		Data: map[string]interface{}{
			"seq":   uint64(1),
			"state": state.DeviceState{LastMarkerColor: marker.Blue, IsConnected: true, DimmerLevel: 100},
		},
	})

	select {
	case <-pub.got:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for publish")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	msg := pub.msgs[0]
	if msg.topic != "markerd/state" || !msg.retained {
		t.Errorf("published to %s retained=%v", msg.topic, msg.retained)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(msg.payload, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded["last_marker_color"] != "blue" {
		t.Errorf("last_marker_color = %v, want blue", decoded["last_marker_color"])
	}
}

func TestBridge_UnrecognizedTag(t *testing.T) {
	bus := eventbus.NewWithConfig(1, 8)
	defer bus.Close(context.Background())

	pub := &recordingPublisher{got: make(chan struct{}, 8)}
	NewBridge(pub, Topics{Prefix: "desk"}).Register(bus)

	bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeTagUnrecognized,
		Data: map[string]interface{}{"tag": "de:ad:be:ef:00:00:01"},
	})

	select {
	case <-pub.got:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for publish")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.msgs[0].topic != "desk/rfid/unrecognized" || string(pub.msgs[0].payload) != "de:ad:be:ef:00:00:01" {
		t.Errorf("published %+v", pub.msgs[0])
	}
}

// slowFirstPublisher delays its first publish, as a broker round trip would.
type slowFirstPublisher struct {
	mu    sync.Mutex
	calls int
	state []string
}

func (p *slowFirstPublisher) Publish(topic string, payload []byte, retained bool) error {
	p.mu.Lock()
	p.calls++
	first := p.calls == 1
	p.mu.Unlock()

	if first {
		time.Sleep(50 * time.Millisecond)
	}

	var snap map[string]interface{}
	json.Unmarshal(payload, &snap)
	color, _ := snap["last_marker_color"].(string)

	p.mu.Lock()
	p.state = append(p.state, color)
	p.mu.Unlock()
	return nil
}

func stateEvent(seq uint64, c marker.Color) eventbus.Event {
	return eventbus.Event{
		Type: eventbus.EventTypeStateChanged,
		Data: map[string]interface{}{
			"seq":   seq,
			"state": state.DeviceState{LastMarkerColor: c},
		},
	}
}

func TestBridge_RetainedStateFollowsSequence(t *testing.T) {
	bus := eventbus.NewWithConfig(2, 64)

	pub := &slowFirstPublisher{}
	NewBridge(pub, Topics{}).Register(bus)

	bus.Publish(stateEvent(1, marker.Red))
	bus.Publish(stateEvent(2, marker.Blue))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	bus.Close(ctx)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.state) == 0 {
		t.Fatal("nothing published")
	}
	if last := pub.state[len(pub.state)-1]; last != "blue" {
		t.Errorf("retained state = %s after %v, want blue", last, pub.state)
	}
}

func TestBridge_DropsOlderSnapshot(t *testing.T) {
	pub := &recordingPublisher{got: make(chan struct{}, 8)}
	b := NewBridge(pub, Topics{})

	b.onStateChanged(stateEvent(2, marker.Blue))
	b.onStateChanged(stateEvent(1, marker.Red))
	b.onStateChanged(stateEvent(2, marker.Blue))

	if len(pub.msgs) != 1 {
		t.Fatalf("published %d snapshots, want 1", len(pub.msgs))
	}
}
