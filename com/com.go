// Package com talks AT commands to a modem over a serial line. Unsolicited result codes are
// dispatched to indication handlers, everything else is collected as response to the active command.
package com

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pion/logging"
)

const (
	readBufferSize        = 1024
	atSendingQueueTimeout = 500 * time.Millisecond
	readyRetryInterval    = 200 * time.Millisecond
)

// ErrQueueTimeout is returned if a command could not be sent because another command is still active.
var ErrQueueTimeout = errors.New("AT sending queue timeout")

// ResponseError is the final result code of a failed command, e.g. ERROR or +CME ERROR: 10.
type ResponseError struct {
	Response string
}

func (e *ResponseError) Error() string {
	return e.Response
}

// Config of a COM instance.
type Config struct {
	// Tracer receives a transcript of all communication, if set.
	Tracer        io.Writer
	LoggerFactory logging.LoggerFactory
}

// COM allows to communicate with a modem using AT commands.
type COM struct {
	commands chan<- command
	closed   chan struct{}
	tracer   io.Writer
	log      logging.LeveledLogger

	indicationsLock sync.RWMutex
	indications     map[string]indicationConfig
}

// New creates a new COM instance using the given io.ReadWriter to communicate with the modem.
func New(device io.ReadWriter, config Config) *COM {
	commands := make(chan command)
	result := &COM{
		commands:    commands,
		closed:      make(chan struct{}),
		tracer:      config.Tracer,
		indications: make(map[string]indicationConfig),
	}
	if config.LoggerFactory != nil {
		result.log = config.LoggerFactory.NewLogger("com")
	}

	go result.loop(device, readLoop(device), commands)

	return result
}

func (c *COM) loop(device io.Writer, lines <-chan string, commands <-chan command) {
	c.trace("****\n* SESSION START\n****\n")
	defer c.trace("****\n* SESSION END\n****\n")
	defer close(c.closed)

	var commandCancelled <-chan struct{}
	var activeCommand *command
	var activeIndication *indication
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case line, valid := <-lines:
			if !valid {
				if c.log != nil {
					c.log.Info("device closed")
				}
				return
			}
			c.tracef("rx:  %s\nhex: %X\n--\n", line, line)

			switch {
			case activeIndication != nil:
				activeIndication.AddLine(line)
				if activeIndication.Complete() {
					activeIndication = nil
				}
			case activeCommand != nil:
				activeIndication = c.newIndication(line)
				if activeIndication != nil {
					break
				}
				activeCommand.AddLine(line)
				if activeCommand.Complete() {
					commandCancelled = nil
					activeCommand = nil
				}
			default:
				activeIndication = c.newIndication(line)
				if activeIndication == nil && c.log != nil {
					c.log.Debugf("ignoring unexpected line %q", line)
				}
			}
		case <-commandCancelled:
			commandCancelled = nil
			activeCommand = nil
		case <-tick.C:
		}
		if activeCommand != nil {
			continue
		}
		select {
		case cmd := <-commands:
			if len(cmd.request) == 0 {
				break
			}
			txbytes := make([]byte, 0, len(cmd.request)+2)
			txbytes = append(txbytes, cmd.request...)
			txbytes = append(txbytes, '\r', '\n')
			c.tracef("tx:  %s\nhex: %X\n--\n", txbytes, txbytes)
			if _, err := device.Write(txbytes); err != nil {
				cmd.err <- fmt.Errorf("cannot send %s: %w", cmd.request, err)
				break
			}
			commandCancelled = cmd.cancelled
			activeCommand = &cmd
		default:
		}
	}
}

func readLoop(r io.Reader) <-chan string {
	lines := make(chan string, 1)
	go func() {
		defer close(lines)
		buf := make([]byte, readBufferSize)
		currentLine := make([]byte, 0, readBufferSize)
		for {
			n, err := r.Read(buf)
			for _, b := range buf[0:n] {
				switch {
				case b == '\n':
					if len(currentLine) == 0 {
						continue
					}
					lines <- string(currentLine)
					currentLine = currentLine[:0]
				case b < ' ':
					continue
				default:
					currentLine = append(currentLine, b)
				}
			}
			if err != nil {
				if len(currentLine) > 0 {
					lines <- string(currentLine)
				}
				return
			}
		}
	}()
	return lines
}

// Closed reports if the device was closed.
func (c *COM) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// WaitUntilClosed blocks until the device was closed.
func (c *COM) WaitUntilClosed() {
	<-c.closed
}

// AddIndication registers a handler for unsolicited result codes starting with the given prefix.
// The handler receives the line with the prefix and the given number of trailing lines. It is
// called from the communication loop and must not issue commands.
func (c *COM) AddIndication(prefix string, trailingLines int, handler func(lines []string)) error {
	if prefix == "" {
		return fmt.Errorf("empty indication prefix")
	}
	if trailingLines < 0 {
		return fmt.Errorf("invalid number of trailing lines for %s: %d", prefix, trailingLines)
	}
	config := indicationConfig{
		prefix:        strings.ToUpper(prefix),
		trailingLines: trailingLines,
		handler:       handler,
	}
	c.indicationsLock.Lock()
	defer c.indicationsLock.Unlock()
	c.indications[config.prefix] = config
	return nil
}

func (c *COM) newIndication(line string) *indication {
	c.indicationsLock.RLock()
	defer c.indicationsLock.RUnlock()
	for _, config := range c.indications {
		result := config.NewIfMatches(line)
		if result != nil {
			return result
		}
	}
	return nil
}

// WaitReady sends AT until the modem answers with OK or the context is done.
func (c *COM) WaitReady(ctx context.Context) error {
	for {
		_, err := c.AT(ctx, "AT")
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.log != nil {
			c.log.Debugf("modem not ready: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return fmt.Errorf("device closed")
		case <-time.After(readyRetryInterval):
		}
	}
}

// AT sends the given request and returns the response lines without the final result code.
func (c *COM) AT(ctx context.Context, request string) ([]string, error) {
	cmd := command{
		request:   request,
		response:  make(chan []string, 1),
		err:       make(chan error, 1),
		cancelled: ctx.Done(),
		completed: make(chan struct{}),
	}

	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, fmt.Errorf("device closed")
	case <-time.After(atSendingQueueTimeout):
		return nil, ErrQueueTimeout
	}

	select {
	case response := <-cmd.response:
		return response, nil
	case err := <-cmd.err:
		if c.log != nil {
			c.log.Debugf("%s failed: %v", request, err)
		}
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Request implements cell.Requester.
func (c *COM) Request(ctx context.Context, request string) ([]string, error) {
	return c.AT(ctx, request)
}

// ATs sends the given requests one after the other and stops at the first failure.
func (c *COM) ATs(ctx context.Context, requests ...string) error {
	for _, request := range requests {
		_, err := c.AT(ctx, request)
		if err != nil {
			return fmt.Errorf("%s failed: %w", request, err)
		}
	}
	return nil
}

func (c *COM) trace(args ...any) {
	if c.tracer == nil {
		return
	}
	fmt.Fprint(c.tracer, args...)
}

func (c *COM) tracef(format string, args ...any) {
	if c.tracer == nil {
		return
	}
	fmt.Fprintf(c.tracer, format, args...)
}

type indicationConfig struct {
	prefix        string
	trailingLines int
	handler       func(lines []string)
}

func (c indicationConfig) NewIfMatches(line string) *indication {
	if !strings.HasPrefix(strings.ToUpper(line), c.prefix) {
		return nil
	}
	result := &indication{
		config: c,
		lines:  []string{line},
	}
	if result.Complete() {
		c.handler(result.lines)
		return nil
	}
	return result
}

type indication struct {
	config indicationConfig
	lines  []string
}

func (ind *indication) AddLine(line string) {
	if ind.Complete() {
		return
	}
	ind.lines = append(ind.lines, line)
	if ind.Complete() {
		ind.config.handler(ind.lines)
	}
}

func (ind *indication) Complete() bool {
	return len(ind.lines) >= ind.config.trailingLines+1
}

type command struct {
	lines     []string
	request   string
	response  chan []string
	err       chan error
	cancelled <-chan struct{}
	completed chan struct{}
}

func (c *command) AddLine(line string) {
	select {
	case <-c.cancelled:
		return
	case <-c.completed:
		return
	default:
	}

	saniLine := strings.TrimSpace(strings.ToUpper(line))
	switch {
	case saniLine == "OK":
		c.response <- c.lines
		close(c.completed)
	case strings.HasPrefix(saniLine, "ERROR"),
		strings.HasPrefix(saniLine, "+CME ERROR"),
		strings.HasPrefix(saniLine, "+CMS ERROR"):
		c.err <- &ResponseError{Response: line}
		close(c.completed)
	case saniLine == strings.ToUpper(c.request):
		// echo
	default:
		c.lines = append(c.lines, line)
	}
}

func (c *command) Complete() bool {
	select {
	case <-c.cancelled:
		return true
	case <-c.completed:
		return true
	default:
		return false
	}
}
