// Package serialmux shares one serial connection to the plant board between
// several readers. Lines read from the port are fanned out to subscribers and
// commands from any client are written to the single device.
package serialmux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/lpi-control/internal/httputil"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// subscriberBuffer is how many lines a slow subscriber may fall behind before
// lines are dropped for it.
const subscriberBuffer = 16

// SerialMux fans lines from one serial port out to many subscribers.
type SerialMux[T SerialPorter] struct {
	port      T
	subs      *subscriberSet
	commandMu sync.Mutex
}

// SerialMuxInterface is implemented by SerialMux and DisabledSerialMux.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving lines from the serial
	// port. The returned ID is used to unsubscribe.
	Subscribe() (string, chan string)
	// Unsubscribe closes and removes a subscriber channel.
	Unsubscribe(string)
	// SendCommand writes the command, newline terminated, to the port.
	SendCommand(string) error
	// Monitor reads lines until ctx is done or the port fails.
	Monitor(context.Context) error
	// Close closes all subscriber channels and the port.
	Close() error
	// Initialise puts the board into a known state.
	Initialise() error
	// AttachAdminRoutes mounts debug endpoints under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

var (
	_ SerialMuxInterface = (*SerialMux[SerialPorter])(nil)
	_ SerialMuxInterface = (*DisabledSerialMux)(nil)
)

// NewSerialMux wraps an open port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port: port,
		subs: newSubscriberSet(subscriberBuffer),
	}
}

// Subscribe returns a channel of incoming lines and the ID to pass to
// Unsubscribe. After Close the channel is returned already closed.
func (s *SerialMux[T]) Subscribe() (string, chan string) { return s.subs.add() }

func (s *SerialMux[T]) Unsubscribe(id string) { s.subs.remove(id) }

// Initialise zeroes the actuator and switches the board to JSON reports so
// that ParseReading sees a stable format.
func (s *SerialMux[T]) Initialise() error {
	for _, command := range []string{
		FormatOutput(0), // drive the plant to zero until the loop starts
		"OJ",            // report samples as JSON
	} {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand sends a command to the serial port.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads lines from the port and delivers them to subscribers until
// ctx is done, the port reaches EOF or Close is called.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// scan.Scan blocks, so it runs on its own goroutine and the loop below
	// stays responsive to cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			if s.subs.isClosed() {
				return nil
			}
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					if !s.subs.isClosed() {
						return err
					}
				default:
				}
				return nil
			}
			if s.subs.isClosed() {
				return nil
			}
			s.subs.broadcast(line)
		}
	}
}

// Close closes every subscriber channel and then the port.
func (s *SerialMux[T]) Close() error {
	s.subs.closeAll()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// API endpoint to write a command to the serial port
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodPost) {
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			httputil.WriteError(w, http.StatusBadRequest, "missing command")
			return
		}
		if err := s.SendCommand(command); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to write command: %v", err)
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"sent": command})
	})

	// Server-Sent Events stream of lines coming from the serial port.
	debug.HandleFunc("tail", "live tail of serial port lines (SSE)", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodGet) {
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
