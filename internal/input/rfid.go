package input

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/markerd/internal/eventbus"
	"github.com/dokzlo13/markerd/internal/marker"
	"github.com/dokzlo13/markerd/internal/state"
)

// DefaultRFIDInterval is the RFID poll period.
const DefaultRFIDInterval = 10 * time.Millisecond

// ErrNoTag is returned by a TagReader when no card is in the field.
var ErrNoTag = errors.New("no tag present")

// ReadErrorKind classifies a failed tag read.
type ReadErrorKind int

const (
	ReadErrorUnknown ReadErrorKind = iota
	ReadErrorCollision
	ReadErrorTimeout
	ReadErrorComm
	ReadErrorIncompleteFrame
	ReadErrorBufferOverflow
	ReadErrorCRC
	ReadErrorProtocol
	ReadErrorBCC
	ReadErrorNAK
	ReadErrorNoRoom
	ReadErrorOverheating
	ReadErrorParity
	ReadErrorWrite
	ReadErrorWrongUIDSize
)

var readErrorNames = map[ReadErrorKind]string{
	ReadErrorUnknown:         "unknown",
	ReadErrorCollision:       "collision",
	ReadErrorTimeout:         "timeout",
	ReadErrorComm:            "comm",
	ReadErrorIncompleteFrame: "incomplete_frame",
	ReadErrorBufferOverflow:  "buffer_overflow",
	ReadErrorCRC:             "crc",
	ReadErrorProtocol:        "protocol",
	ReadErrorBCC:             "bcc",
	ReadErrorNAK:             "nak",
	ReadErrorNoRoom:          "no_room",
	ReadErrorOverheating:     "overheating",
	ReadErrorParity:          "parity",
	ReadErrorWrite:           "write",
	ReadErrorWrongUIDSize:    "wrong_uid_size",
}

func (k ReadErrorKind) String() string {
	if name, ok := readErrorNames[k]; ok {
		return name
	}
	return "unknown"
}

// ReadError is a failed tag read reported by the reader driver.
// Every kind is treated as transient.
type ReadError struct {
	Kind ReadErrorKind
	Err  error
}

func (e *ReadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rfid read failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("rfid read failed (%s)", e.Kind)
}

func (e *ReadError) Unwrap() error { return e.Err }

// TagReader reads the UID of the card currently in the field.
// It returns ErrNoTag when the field is empty and a *ReadError on failure.
type TagReader interface {
	ReadTag(ctx context.Context) (marker.Tag, error)
}

// RFIDPoller polls a TagReader and submits SetMarkerColor for recognized tags.
type RFIDPoller struct {
	reader   TagReader
	core     Submitter
	bus      *eventbus.Bus
	interval time.Duration

	unknownLog rate.Sometimes
	errorLog   rate.Sometimes

	lastUnknown marker.Tag
	haveUnknown bool
}

// NewRFIDPoller creates a poller. bus may be nil.
func NewRFIDPoller(reader TagReader, core Submitter, bus *eventbus.Bus, interval time.Duration) *RFIDPoller {
	if interval <= 0 {
		interval = DefaultRFIDInterval
	}
	return &RFIDPoller{
		reader:     reader,
		core:       core,
		bus:        bus,
		interval:   interval,
		unknownLog: rate.Sometimes{Interval: 5 * time.Second},
		errorLog:   rate.Sometimes{Interval: 5 * time.Second},
	}
}

// Run polls until ctx is cancelled.
func (p *RFIDPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", p.interval).Msg("RFID poller started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("RFID poller stopped")
			return
		case <-ticker.C:
			if !p.poll(ctx) {
				log.Info().Msg("RFID poller stopped")
				return
			}
		}
	}
}

// poll performs one read cycle. It returns false once submitting is no longer possible.
func (p *RFIDPoller) poll(ctx context.Context) bool {
	tag, err := p.reader.ReadTag(ctx)
	if err != nil {
		if errors.Is(err, ErrNoTag) {
			p.haveUnknown = false
			return true
		}
		var readErr *ReadError
		if errors.As(err, &readErr) {
			log.Debug().Err(err).Str("kind", readErr.Kind.String()).Msg("RFID read failed, retrying")
		} else if ctx.Err() == nil {
			p.errorLog.Do(func() {
				log.Warn().Err(err).Msg("RFID reader error")
			})
		}
		return true
	}

	color, ok := marker.FromTag(tag)
	if !ok {
		p.unrecognized(tag)
		return true
	}
	p.haveUnknown = false

	return submit(ctx, p.core, "rfid", state.SetMarkerColor{Color: color})
}

func (p *RFIDPoller) unrecognized(tag marker.Tag) {
	p.unknownLog.Do(func() {
		log.Info().Str("tag", tag.String()).Msg("Unrecognized tag")
	})

	if p.haveUnknown && p.lastUnknown == tag {
		return
	}
	p.lastUnknown = tag
	p.haveUnknown = true

	p.bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeTagUnrecognized,
		Data: map[string]interface{}{"tag": tag.String()},
	})
}
