package input

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/markerd/internal/eventbus"
	"github.com/dokzlo13/markerd/internal/marker"
	"github.com/dokzlo13/markerd/internal/state"
)

var t0 = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

type recordingSubmitter struct {
	mu   sync.Mutex
	cmds []state.Command
	err  error
}

func (s *recordingSubmitter) Submit(_ context.Context, cmd state.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.cmds = append(s.cmds, cmd)
	return nil
}

func (s *recordingSubmitter) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cmds))
	for i, c := range s.cmds {
		out[i] = c.Name()
	}
	return out
}

type scriptedTagReader struct {
	results []tagResult
	i       int
}

type tagResult struct {
	tag marker.Tag
	err error
}

func (r *scriptedTagReader) ReadTag(context.Context) (marker.Tag, error) {
	if r.i >= len(r.results) {
		return marker.Tag{}, ErrNoTag
	}
	res := r.results[r.i]
	r.i++
	return res.tag, res.err
}

func equalNames(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRFIDPoller_RecognizedTagSubmits(t *testing.T) {
	reader := &scriptedTagReader{results: []tagResult{
		{err: ErrNoTag},
		{tag: marker.ToTag(marker.Blue)},
		{err: &ReadError{Kind: ReadErrorCollision}},
		{tag: marker.ToTag(marker.Blue)},
	}}
	sub := &recordingSubmitter{}
	p := NewRFIDPoller(reader, sub, nil, 0)

	for range reader.results {
		if !p.poll(context.Background()) {
			t.Fatal("poll reported stop")
		}
	}

	if len(sub.cmds) != 2 {
		t.Fatalf("submitted %v, want two SetMarkerColor", sub.names())
	}
	for _, cmd := range sub.cmds {
		sm, ok := cmd.(state.SetMarkerColor)
		if !ok || sm.Color != marker.Blue {
			t.Errorf("submitted %#v, want SetMarkerColor{Blue}", cmd)
		}
	}
}

func TestRFIDPoller_ReadErrorsAreTransient(t *testing.T) {
	kinds := []ReadErrorKind{
		ReadErrorCollision, ReadErrorTimeout, ReadErrorComm, ReadErrorCRC,
		ReadErrorNAK, ReadErrorWrongUIDSize, ReadErrorUnknown,
	}
	var results []tagResult
	for _, k := range kinds {
		results = append(results, tagResult{err: &ReadError{Kind: k, Err: errors.New("spi")}})
	}
	results = append(results, tagResult{tag: marker.ToTag(marker.Red)})

	reader := &scriptedTagReader{results: results}
	sub := &recordingSubmitter{}
	p := NewRFIDPoller(reader, sub, nil, 0)

	for range results {
		p.poll(context.Background())
	}

	if got := sub.names(); !equalNames(got, []string{"set_marker_color"}) {
		t.Errorf("submitted %v, want one set_marker_color after the errors", got)
	}
}

func TestRFIDPoller_UnrecognizedTagPublishesOnce(t *testing.T) {
	bus := eventbus.NewWithConfig(1, 16)
	defer bus.Close(context.Background())

	seen := make(chan string, 8)
	bus.Subscribe(eventbus.EventTypeTagUnrecognized, func(e eventbus.Event) {
		seen <- e.Data["tag"].(string)
	})

	unknown := marker.Tag{0xde, 0xad, 0xbe, 0xef, 0x00, 0x00, 0x01}
	reader := &scriptedTagReader{results: []tagResult{
		{tag: unknown},
		{tag: unknown},
		{tag: unknown},
		{err: ErrNoTag},
		{tag: unknown},
	}}
	sub := &recordingSubmitter{}
	p := NewRFIDPoller(reader, sub, bus, 0)

	for range reader.results {
		p.poll(context.Background())
	}

	if len(sub.cmds) != 0 {
		t.Errorf("unrecognized tag submitted %v", sub.names())
	}

	for i := 0; i < 2; i++ {
		select {
		case tag := <-seen:
			if tag != unknown.String() {
				t.Errorf("event tag = %s, want %s", tag, unknown)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}
	select {
	case tag := <-seen:
		t.Errorf("unexpected extra event for %s", tag)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRFIDPoller_StopsWhenCoreStopped(t *testing.T) {
	reader := &scriptedTagReader{results: []tagResult{{tag: marker.ToTag(marker.Green)}}}
	sub := &recordingSubmitter{err: state.ErrStopped}
	p := NewRFIDPoller(reader, sub, nil, 0)

	if p.poll(context.Background()) {
		t.Error("poll should report stop once the core has stopped")
	}
}

func TestReadError(t *testing.T) {
	cause := errors.New("bus fault")
	var err error = &ReadError{Kind: ReadErrorCRC, Err: cause}

	var readErr *ReadError
	if !errors.As(err, &readErr) || readErr.Kind != ReadErrorCRC {
		t.Fatalf("errors.As failed for %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("ReadError should unwrap to its cause")
	}
	if ReadErrorKind(200).String() != "unknown" {
		t.Error("out of range kind should print as unknown")
	}
}

type scriptedButton struct {
	levels []bool
	i      int
}

func (b *scriptedButton) Pressed() (bool, error) {
	if b.i >= len(b.levels) {
		return false, nil
	}
	v := b.levels[b.i]
	b.i++
	return v, nil
}

// runButton samples levels at 100ms steps and returns the submitted command names.
func runButton(t *testing.T, longPress time.Duration, levels ...bool) []string {
	t.Helper()
	reader := &scriptedButton{levels: levels}
	sub := &recordingSubmitter{}
	b := NewButtonPoller(reader, sub, 0, longPress)
	for i := range levels {
		b.sample(context.Background(), t0.Add(time.Duration(i)*100*time.Millisecond))
	}
	return sub.names()
}

func TestButtonPoller_Gestures(t *testing.T) {
	held := func(n int) []bool {
		out := make([]bool, n)
		for i := range out {
			out[i] = true
		}
		return out
	}
	seq := func(parts ...[]bool) []bool {
		var out []bool
		for _, p := range parts {
			out = append(out, p...)
		}
		return out
	}
	released := []bool{false}

	tests := []struct {
		name      string
		longPress time.Duration
		levels    []bool
		want      []string
	}{
		{
			name:      "short_press_toggles_on_release",
			longPress: 2 * time.Second,
			levels:    seq(released, held(3), released),
			want:      []string{"toggle_dimmer"},
		},
		{
			name:      "held_without_release_does_nothing_yet",
			longPress: 2 * time.Second,
			levels:    seq(released, held(5)),
			want:      nil,
		},
		{
			name:      "long_hold_clears_once",
			longPress: 2 * time.Second,
			levels:    seq(released, held(40), released),
			want:      []string{"clear_marker_color"},
		},
		{
			name:      "two_short_presses",
			longPress: 2 * time.Second,
			levels:    seq(released, held(2), released, held(2), released),
			want:      []string{"toggle_dimmer", "toggle_dimmer"},
		},
		{
			name:      "edge_mode_toggles_on_press",
			longPress: 0,
			levels:    seq(released, held(40), released),
			want:      []string{"toggle_dimmer"},
		},
		{
			name:      "idle",
			longPress: 2 * time.Second,
			levels:    seq(released, released, released),
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runButton(t, tt.longPress, tt.levels...)
			if !equalNames(got, tt.want) {
				t.Errorf("submitted %v, want %v", got, tt.want)
			}
		})
	}
}

type failingButton struct{}

func (failingButton) Pressed() (bool, error) { return false, errors.New("gpio read failed") }

func TestButtonPoller_ReadErrorKeepsRunning(t *testing.T) {
	sub := &recordingSubmitter{}
	b := NewButtonPoller(failingButton{}, sub, 0, 0)
	if !b.sample(context.Background(), t0) {
		t.Error("a read error should not stop the poller")
	}
	if len(sub.cmds) != 0 {
		t.Errorf("submitted %v on read error", sub.names())
	}
}

type scriptedProbe struct {
	results []bool
	i       int
}

func (p *scriptedProbe) Probe(context.Context) bool {
	if p.i >= len(p.results) {
		return p.results[len(p.results)-1]
	}
	v := p.results[p.i]
	p.i++
	return v
}

func TestConnectivityMonitor_EmitsFirstAndChanges(t *testing.T) {
	probe := &scriptedProbe{results: []bool{false, false, true, true, true, false, true}}
	sub := &recordingSubmitter{}
	m := NewConnectivityMonitor(probe, sub, 0)

	for range probe.results {
		m.check(context.Background())
	}

	want := []bool{false, true, false, true}
	if len(sub.cmds) != len(want) {
		t.Fatalf("submitted %d commands, want %d", len(sub.cmds), len(want))
	}
	for i, w := range want {
		sc, ok := sub.cmds[i].(state.SetConnected)
		if !ok || sc.Connected != w {
			t.Errorf("cmd[%d] = %#v, want SetConnected{%v}", i, sub.cmds[i], w)
		}
	}
}

func TestTCPProbe(t *testing.T) {
	p := NewTCPProbe("192.168.2.2", 0)
	if p.Address != "192.168.2.2:80" {
		t.Errorf("Address = %s, want default port 80", p.Address)
	}
	p = NewTCPProbe("bulb.local:8080", 0)
	if p.Address != "bulb.local:8080" {
		t.Errorf("Address = %s, want explicit port kept", p.Address)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if p.Probe(ctx) {
		t.Error("probe with a cancelled context should fail")
	}
}

func TestSyncTicker_SubmitsPeriodically(t *testing.T) {
	sub := &recordingSubmitter{}
	s := NewSyncTicker(sub, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	names := sub.names()
	if len(names) < 2 {
		t.Fatalf("submitted %d sync commands, want several", len(names))
	}
	for _, n := range names {
		if n != "sync_state" {
			t.Errorf("submitted %s, want sync_state", n)
		}
	}
}

func TestPresence_TTL(t *testing.T) {
	now := t0
	p := NewPresence(250 * time.Millisecond)
	p.clock = func() time.Time { return now }

	if _, err := p.ReadTag(context.Background()); !errors.Is(err, ErrNoTag) {
		t.Fatalf("empty presence = %v, want ErrNoTag", err)
	}

	tag := marker.ToTag(marker.Violet)
	p.Present(tag)

	now = t0.Add(249 * time.Millisecond)
	got, err := p.ReadTag(context.Background())
	if err != nil || got != tag {
		t.Fatalf("ReadTag() = %s, %v; want %s", got, err, tag)
	}

	now = t0.Add(250 * time.Millisecond)
	if _, err := p.ReadTag(context.Background()); !errors.Is(err, ErrNoTag) {
		t.Errorf("expired presence = %v, want ErrNoTag", err)
	}
}
