package app

import (
	"github.com/dokzlo13/markerd/internal/config"
	"github.com/dokzlo13/markerd/internal/eventbus"
	"github.com/dokzlo13/markerd/internal/telemetry"
)

// TelemetryService records dispatches and transitions to InfluxDB.
type TelemetryService struct {
	Client   *telemetry.Client
	Recorder *telemetry.Recorder
}

// NewTelemetryService connects to InfluxDB and subscribes the recorder.
func NewTelemetryService(cfg *config.Config, bus *eventbus.Bus) (*TelemetryService, error) {
	client, err := telemetry.Connect(telemetry.Options{
		URL:           cfg.InfluxDB.URL,
		Token:         cfg.InfluxDB.Token,
		Org:           cfg.InfluxDB.Org,
		Bucket:        cfg.InfluxDB.Bucket,
		BatchSize:     uint(cfg.InfluxDB.BatchSize),
		FlushInterval: cfg.InfluxDB.FlushInterval.Duration(),
	})
	if err != nil {
		return nil, err
	}

	recorder := telemetry.NewRecorder(client, cfg.InfluxDB.Device)
	recorder.Register(bus)

	return &TelemetryService{Client: client, Recorder: recorder}, nil
}

// Close flushes pending points.
func (s *TelemetryService) Close() {
	if s.Client != nil {
		s.Client.Close()
	}
}
