package com

import (
	"io"
	"strings"
	"sync"
	"time"
)

const inMemoryPollInterval = 5 * time.Millisecond

// InMemory is a device that keeps everything in memory. It allows to script a modem in tests.
type InMemory struct {
	mu             sync.Mutex
	incoming       []byte
	outgoing       []byte
	written        chan struct{}
	closed         chan struct{}
	closeOnce      sync.Once
	closeWhenEmpty bool
}

func NewInMemory() *InMemory {
	return &InMemory{
		written: make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

func (d *InMemory) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)
	})
	return nil
}

func (d *InMemory) WaitUntilClosed() {
	<-d.closed
}

// Read blocks until there is something to read or the device is closed.
func (d *InMemory) Read(p []byte) (int, error) {
	for {
		select {
		case <-d.closed:
			return 0, io.EOF
		default:
		}

		d.mu.Lock()
		if len(d.incoming) > 0 {
			n := copy(p, d.incoming)
			d.incoming = d.incoming[n:]
			if d.closeWhenEmpty && len(d.incoming) == 0 {
				d.Close()
			}
			d.mu.Unlock()
			return n, nil
		}
		d.mu.Unlock()

		select {
		case <-d.closed:
			return 0, io.EOF
		case <-time.After(inMemoryPollInterval):
		}
	}
}

// PrepareRead appends the given bytes to the data that is returned by Read.
func (d *InMemory) PrepareRead(p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.incoming = append(d.incoming, p...)
}

// Respond appends the given lines, each terminated by CR LF, to the data that is returned by Read.
func (d *InMemory) Respond(lines ...string) {
	d.PrepareRead([]byte(strings.Join(lines, "\r\n") + "\r\n"))
}

func (d *InMemory) IsReadEmpty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.incoming) == 0
}

// CloseWhenEmpty closes the device as soon as all prepared data was read.
func (d *InMemory) CloseWhenEmpty(value bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeWhenEmpty = value
}

func (d *InMemory) Write(p []byte) (int, error) {
	d.mu.Lock()
	d.outgoing = append(d.outgoing, p...)
	d.mu.Unlock()

	select {
	case d.written <- struct{}{}:
	default:
	}
	return len(p), nil
}

// Written returns a copy of everything that was written so far.
func (d *InMemory) Written() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.outgoing...)
}

func (d *InMemory) ClearWrite() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outgoing = nil
}

// WaitUntilWritten blocks until the next call of Write.
func (d *InMemory) WaitUntilWritten() {
	<-d.written
}
