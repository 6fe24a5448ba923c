package serialmux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/lpi-control/internal/loop"
	"github.com/banshee-data/lpi-control/internal/monitoring"
	"github.com/banshee-data/lpi-control/internal/timeutil"
)

var (
	// ErrLinkClosed is returned once the plant link's subscription has ended.
	ErrLinkClosed = errors.New("plant link closed")
	// ErrStaleReading is returned when the newest sample is older than MaxAge.
	ErrStaleReading = errors.New("stale reading")
)

var plantLog = monitoring.NewLogger("plant")

var (
	_ loop.Sensor   = (*PlantLink)(nil)
	_ loop.Actuator = (*PlantLink)(nil)
)

// PlantLink connects a control loop to a plant board behind a serial mux.
// It keeps the most recent parsed sample for Read and writes outputs with
// SendCommand.
type PlantLink struct {
	mux    SerialMuxInterface
	clock  timeutil.Clock
	maxAge time.Duration

	id   string
	done chan struct{}

	mu          sync.Mutex
	latest      loop.Reading
	receivedAt  time.Time
	ready       chan struct{}
	have        bool
	parseErrors uint64
}

// NewPlantLink subscribes to mux. Readings older than maxAge are reported as
// stale; zero disables the check. A nil clock uses the real clock.
func NewPlantLink(mux SerialMuxInterface, maxAge time.Duration, clock timeutil.Clock) *PlantLink {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	id, ch := mux.Subscribe()
	p := &PlantLink{
		mux:    mux,
		clock:  clock,
		maxAge: maxAge,
		id:     id,
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
	}
	go p.consume(ch)
	return p
}

func (p *PlantLink) consume(ch <-chan string) {
	defer close(p.done)
	for line := range ch {
		r, err := ParseReading(line)
		if err != nil {
			p.mu.Lock()
			p.parseErrors++
			p.mu.Unlock()
			plantLog.Printf("ignoring line %q: %v", line, err)
			continue
		}
		p.mu.Lock()
		p.latest = r
		p.receivedAt = p.clock.Now()
		if !p.have {
			p.have = true
			close(p.ready)
		}
		p.mu.Unlock()
	}
}

// Read returns the newest sample, waiting for the first one to arrive. It
// fails with ErrLinkClosed once the subscription has ended.
func (p *PlantLink) Read(ctx context.Context) (loop.Reading, error) {
	select {
	case <-p.done:
		return loop.Reading{}, ErrLinkClosed
	default:
	}

	select {
	case <-p.ready:
	case <-p.done:
		return loop.Reading{}, ErrLinkClosed
	case <-ctx.Done():
		return loop.Reading{}, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.maxAge > 0 {
		if age := p.clock.Since(p.receivedAt); age > p.maxAge {
			return loop.Reading{}, fmt.Errorf("%w: last sample is %v old", ErrStaleReading, age)
		}
	}
	return p.latest, nil
}

// Apply writes the output to the board.
func (p *PlantLink) Apply(ctx context.Context, output float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.mux.SendCommand(FormatOutput(output))
}

// ParseErrors returns how many lines could not be parsed.
func (p *PlantLink) ParseErrors() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parseErrors
}

// Close ends the subscription.
func (p *PlantLink) Close() {
	p.mux.Unsubscribe(p.id)
	<-p.done
}
