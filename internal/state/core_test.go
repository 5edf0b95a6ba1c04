package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/markerd/internal/bulb"
	"github.com/dokzlo13/markerd/internal/eventbus"
	"github.com/dokzlo13/markerd/internal/marker"
)

// newTestCore returns a core with a fixed clock and an outbound queue of the default size.
func newTestCore(opts ...Option) (*Core, chan bulb.Command, *Slot[DeviceState]) {
	queue := make(chan bulb.Command, bulb.DefaultQueueSize)
	slot := NewSlot[DeviceState]()
	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	return NewCore(queue, slot, opts...), queue, slot
}

func handleAll(t *testing.T, c *Core, cmds ...Command) {
	t.Helper()
	for _, cmd := range cmds {
		if err := c.handle(context.Background(), cmd); err != nil {
			t.Fatalf("handle(%s): %v", cmd.Name(), err)
		}
	}
}

func drain(queue chan bulb.Command) []bulb.Command {
	var out []bulb.Command
	for {
		select {
		case cmd := <-queue:
			out = append(out, cmd)
		default:
			return out
		}
	}
}

func TestCore_BootThenBlue(t *testing.T) {
	c, queue, slot := newTestCore()
	handleAll(t, c, SetMarkerColor{Color: marker.Blue})

	got := drain(queue)
	if len(got) != 1 {
		t.Fatalf("queue has %d commands, want 1", len(got))
	}
	if got[0] != bulb.HSBColor(240, 100, 100) {
		t.Errorf("enqueued %s, want HSBColor 240,100,100", got[0])
	}

	snap, ok := slot.Take()
	if !ok {
		t.Fatal("no broadcast")
	}
	if snap.LastMarkerColor != marker.Blue {
		t.Errorf("broadcast marker = %s, want blue", snap.LastMarkerColor)
	}
}

func TestCore_SameMarkerTwiceEnqueuesOnce(t *testing.T) {
	c, queue, slot := newTestCore()

	handleAll(t, c, SetMarkerColor{Color: marker.Red})
	if _, ok := slot.Take(); !ok {
		t.Fatal("first detection should broadcast")
	}

	handleAll(t, c, SetMarkerColor{Color: marker.Red})
	if _, ok := slot.Take(); ok {
		t.Error("second detection should not broadcast")
	}

	if n := len(drain(queue)); n != 1 {
		t.Errorf("queue length = %d, want 1", n)
	}
}

func TestCore_ClearWithoutMarkerEnqueuesNothing(t *testing.T) {
	c, queue, slot := newTestCore()
	handleAll(t, c, ClearMarkerColor{})

	if n := len(drain(queue)); n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
	if _, ok := slot.Latest(); ok {
		t.Error("no-op clear should not broadcast")
	}
}

func TestCore_ReconnectResync(t *testing.T) {
	c, queue, _ := newTestCore()

	handleAll(t, c, SetConnected{Connected: true}, SetMarkerColor{Color: marker.Red})
	before := drain(queue)
	if len(before) != 1 {
		t.Fatalf("expected one command after marker, got %v", before)
	}

	handleAll(t, c, SetConnected{Connected: false}, SetConnected{Connected: true})
	after := drain(queue)
	if len(after) != 1 {
		t.Fatalf("expected exactly one command on reconnect, got %v", after)
	}
	if after[0] != before[0] {
		t.Errorf("reconnect enqueued %s, want %s", after[0], before[0])
	}
}

func TestCore_ConnectivityAlwaysBroadcasts(t *testing.T) {
	c, _, slot := newTestCore()
	handleAll(t, c, SetConnected{Connected: true})

	snap, ok := slot.Take()
	if !ok || !snap.IsConnected {
		t.Fatalf("expected connected broadcast, got %+v (ok=%v)", snap, ok)
	}
}

func TestCore_InvalidColorIgnored(t *testing.T) {
	c, queue, slot := newTestCore()
	handleAll(t, c, SetMarkerColor{Color: marker.Color(99)})

	if n := len(drain(queue)); n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
	if _, ok := slot.Latest(); ok {
		t.Error("invalid color should not broadcast")
	}
}

func TestCore_BackpressureBlocksUntilCancelled(t *testing.T) {
	queue := make(chan bulb.Command, 1)
	slot := NewSlot[DeviceState]()
	c := NewCore(queue, slot, WithClock(func() time.Time { return t0 }))

	handleAll(t, c, SetMarkerColor{Color: marker.Red})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.handle(ctx, SetMarkerColor{Color: marker.Green})
	}()

	select {
	case err := <-done:
		t.Fatalf("handle returned %v while the queue was full", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("handle returned %v, want context.Canceled", err)
	}
}

func TestCore_BackpressureResumesWhenDrained(t *testing.T) {
	queue := make(chan bulb.Command, 1)
	slot := NewSlot[DeviceState]()
	c := NewCore(queue, slot, WithClock(func() time.Time { return t0 }))

	handleAll(t, c, SetMarkerColor{Color: marker.Red})

	done := make(chan error, 1)
	go func() {
		done <- c.handle(context.Background(), SetMarkerColor{Color: marker.Green})
	}()

	first := <-queue
	if err := <-done; err != nil {
		t.Fatalf("handle: %v", err)
	}
	second := <-queue

	if first != hsbFor(marker.Red) || second != hsbFor(marker.Green) {
		t.Errorf("got %s then %s", first, second)
	}
}

func TestCore_RunPreservesOrder(t *testing.T) {
	bus := eventbus.NewWithConfig(1, 32)
	defer bus.Close(context.Background())

	var mu sync.Mutex
	var observed []string
	allSeen := make(chan struct{})
	bus.Subscribe(eventbus.EventTypeStateChanged, func(e eventbus.Event) {
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, e.Data["command"].(string))
		if len(observed) == 3 {
			close(allSeen)
		}
	})

	c, queue, slot := newTestCore(WithBus(bus), WithCommandBuffer(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	cmds := []Command{
		SetMarkerColor{Color: marker.Orange},
		ToggleDimmer{},
		ClearMarkerColor{},
	}
	for _, cmd := range cmds {
		if err := c.Submit(ctx, cmd); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	want := []bulb.Command{hsbFor(marker.Orange), bulb.Dimmer(0), bulb.White(100)}
	for i, w := range want {
		select {
		case got := <-queue:
			if got != w {
				t.Errorf("queue[%d] = %s, want %s", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for queue[%d]", i)
		}
	}

	select {
	case <-allSeen:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state events")
	}

	mu.Lock()
	defer mu.Unlock()
	wantNames := []string{"set_marker_color", "toggle_dimmer", "clear_marker_color"}
	for i, name := range wantNames {
		if observed[i] != name {
			t.Errorf("event[%d] = %s, want %s", i, observed[i], name)
		}
	}

	final, ok := slot.Latest()
	if !ok {
		t.Fatal("no broadcast")
	}
	if final.HasMarker() || final.DimmerLevel != DimmerOff || final.IntendedBulbState != bulb.White(100) {
		t.Errorf("final state = %+v", final)
	}
}

func TestCore_SubmitAfterStop(t *testing.T) {
	c, _, _ := newTestCore(WithCommandBuffer(0))

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(finished)
	}()
	cancel()
	<-finished

	if err := c.Submit(context.Background(), SyncState{}); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit after stop = %v, want ErrStopped", err)
	}
}

func TestCore_ReadyAfterFirstNoOp(t *testing.T) {
	c, _, slot := newTestCore()
	if c.Ready() {
		t.Fatal("ready before any command")
	}

	// Boot state is already disconnected, so this changes nothing.
	handleAll(t, c, SetConnected{Connected: false})

	if !c.Ready() {
		t.Error("not ready after the first processed command")
	}
	if _, ok := slot.Latest(); ok {
		t.Error("a no-op command should not broadcast")
	}
}
