package input

import (
	"context"
	"sync"
	"time"

	"github.com/dokzlo13/markerd/internal/marker"
)

// DefaultPresenceTTL is how long a pushed tag counts as being in the field.
const DefaultPresenceTTL = 250 * time.Millisecond

// Presence is a TagReader fed by push sources such as MQTT or HTTP.
// A presented tag is reported until its TTL expires, like a card held over the antenna.
type Presence struct {
	mu    sync.Mutex
	tag   marker.Tag
	until time.Time
	ttl   time.Duration
	clock func() time.Time
}

// NewPresence creates an empty presence buffer.
func NewPresence(ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &Presence{ttl: ttl, clock: time.Now}
}

// Present records tag as in the field now.
func (p *Presence) Present(tag marker.Tag) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tag = tag
	p.until = p.clock().Add(p.ttl)
}

// ReadTag returns the last presented tag while its TTL lasts, ErrNoTag otherwise.
func (p *Presence) ReadTag(ctx context.Context) (marker.Tag, error) {
	if err := ctx.Err(); err != nil {
		return marker.Tag{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.until.IsZero() || !p.clock().Before(p.until) {
		return marker.Tag{}, ErrNoTag
	}
	return p.tag, nil
}
