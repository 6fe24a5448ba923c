package serialmux

import (
	"context"
	"net/http"
	"sync"

	"github.com/banshee-data/lpi-control/internal/httputil"
)

// DisabledSerialMux stands in when no plant board is attached. Subscribers
// never receive a line but their channels still close on Unsubscribe or
// Close, so readers unblock during shutdown. Commands are recorded and
// dropped.
type DisabledSerialMux struct {
	subs *subscriberSet

	mu       sync.Mutex
	commands []string
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{subs: newSubscriberSet(0)}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) { return d.subs.add() }
func (d *DisabledSerialMux) Unsubscribe(id string)             { d.subs.remove(id) }

func (d *DisabledSerialMux) SendCommand(command string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, command)
	return nil
}

// Commands returns the commands discarded so far.
func (d *DisabledSerialMux) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSerialMux) Close() error {
	d.subs.closeAll()
	return nil
}

func (d *DisabledSerialMux) Initialise() error { return nil }

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/serial-disabled", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, map[string]any{
			"enabled":     false,
			"subscribers": d.subs.len(),
			"commands":    len(d.Commands()),
		})
	})
}
