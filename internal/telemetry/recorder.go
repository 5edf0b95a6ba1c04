package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/dokzlo13/markerd/internal/eventbus"
	"github.com/dokzlo13/markerd/internal/state"
)

// Measurement names.
const (
	MeasurementDispatch = "bulb_dispatch"
	MeasurementState    = "device_state"
)

// PointWriter accepts points. *Client implements it.
type PointWriter interface {
	WritePoint(p *write.Point)
}

// Recorder turns eventbus events into InfluxDB points.
type Recorder struct {
	w      PointWriter
	device string
	clock  func() time.Time
}

// NewRecorder creates a recorder tagging every point with device.
func NewRecorder(w PointWriter, device string) *Recorder {
	return &Recorder{w: w, device: device, clock: time.Now}
}

// Register subscribes the recorder to the bus.
func (r *Recorder) Register(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeBulbDispatched, r.onDispatched)
	bus.Subscribe(eventbus.EventTypeStateChanged, r.onStateChanged)
}

func (r *Recorder) onDispatched(e eventbus.Event) {
	kind, _ := e.Data["kind"].(string)
	ok, _ := e.Data["ok"].(bool)
	durationMs, _ := e.Data["duration_ms"].(int64)

	r.w.WritePoint(write.NewPoint(
		MeasurementDispatch,
		map[string]string{"device": r.device, "kind": kind},
		map[string]interface{}{"ok": ok, "duration_ms": durationMs},
		r.clock(),
	))
}

func (r *Recorder) onStateChanged(e eventbus.Event) {
	s, ok := e.Data["state"].(state.DeviceState)
	if !ok {
		return
	}
	command, _ := e.Data["command"].(string)

	r.w.WritePoint(write.NewPoint(
		MeasurementState,
		map[string]string{"device": r.device, "command": command},
		map[string]interface{}{
			"marker":    s.LastMarkerColor.String(),
			"connected": s.IsConnected,
			"dimmer":    int64(s.DimmerLevel),
		},
		r.clock(),
	))
}
