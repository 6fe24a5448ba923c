package serialmux

import (
	"bytes"
	"errors"
	"strings"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// FakePort is an in-memory SerialPorter standing in for the plant board.
// Bytes passed to Feed come back out of Read; everything written is kept for
// inspection.
type FakePort struct {
	mu      sync.Mutex
	wake    *sync.Cond
	rx      bytes.Buffer
	tx      bytes.Buffer
	closed  bool
	blocked bool

	// ReadError and WriteError fail the next call of that kind once.
	ReadError  error
	WriteError error
}

// NewFakePort returns a port whose Read reports io.EOF once drained.
func NewFakePort() *FakePort {
	p := &FakePort{}
	p.wake = sync.NewCond(&p.mu)
	return p
}

// NewBlockingFakePort returns a port whose Read waits for Feed or Close when
// there is nothing buffered, like a live device.
func NewBlockingFakePort() *FakePort {
	p := NewFakePort()
	p.blocked = true
	return p
}

func (p *FakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeErr(&p.ReadError); err != nil {
		return 0, err
	}
	for p.blocked && !p.closed && p.rx.Len() == 0 {
		p.wake.Wait()
	}
	if p.closed {
		return 0, errPortClosed
	}
	return p.rx.Read(b)
}

func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeErr(&p.WriteError); err != nil {
		return 0, err
	}
	return p.tx.Write(b)
}

func (p *FakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wake.Broadcast()
	return nil
}

// takeErr returns the pending injected error, or errPortClosed, and clears
// the injection. Callers hold p.mu.
func (p *FakePort) takeErr(slot *error) error {
	if p.closed {
		return errPortClosed
	}
	err := *slot
	*slot = nil
	return err
}

// Feed queues bytes for the reader.
func (p *FakePort) Feed(s string) {
	p.mu.Lock()
	p.rx.WriteString(s)
	p.mu.Unlock()
	p.wake.Broadcast()
}

// Written returns everything written to the port so far.
func (p *FakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tx.String()
}

// WrittenLines splits Written into commands, dropping the terminators.
func (p *FakePort) WrittenLines() []string {
	var lines []string
	for line := range strings.SplitSeq(p.Written(), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// IsClosed reports whether Close has been called.
func (p *FakePort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// FakePortFactory hands out a fixed port and records what it was asked for.
type FakePortFactory struct {
	mu    sync.Mutex
	port  SerialPorter
	calls []OpenCall

	// Error, when set, fails every Open.
	Error error
}

// OpenCall is one recorded FakePortFactory.Open.
type OpenCall struct {
	Path    string
	Options PortOptions
}

func NewFakePortFactory(port SerialPorter) *FakePortFactory {
	return &FakePortFactory{port: port}
}

func (f *FakePortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, OpenCall{Path: path, Options: opts})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.port, nil
}

// Calls returns the Open calls made so far.
func (f *FakePortFactory) Calls() []OpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]OpenCall(nil), f.calls...)
}
