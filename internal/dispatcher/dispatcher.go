// Package dispatcher routes session commands (program loads, position samples,
// offset polls, archive requests) to their handlers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Queued is the result of an event accepted by a buffered route.
const Queued = "queued"

var (
	// ErrClosed is returned for events dispatched to a queue after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrQueueFull is returned when a non-blocking queue has no room.
	ErrQueueFull = errors.New("queue full")
)

// Event is one command. Args carry textual arguments, Payload a typed value
// from in-process producers such as the status monitor.
type Event struct {
	Command   string
	Args      []string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger is the logging surface the dispatcher needs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a route at registration.
type Option func(*route)

// Buffered runs the handler on its own goroutine behind a queue of size events.
func Buffered(size int) Option {
	return func(r *route) {
		r.queue = make(chan Event, size)
	}
}

// Blocking makes a full queue wait for room instead of dropping the event.
func Blocking() Option {
	return func(r *route) {
		r.block = true
	}
}

// Logged traces every event at debug level and failures at error level.
func Logged() Option {
	return func(r *route) {
		r.logged = true
	}
}

type route struct {
	command string
	handle  HandlerFunc
	queue   chan Event
	block   bool
	logged  bool
	attrs   metric.MeasurementOption
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger Logger
	stats  *stats
	routes map[string]*route

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter provider.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger: logger,
		routes: make(map[string]*route),
	}
	s, err := newStats(d)
	if err != nil {
		return nil, err
	}
	d.stats = s
	return d, nil
}

// Register adds a handler for command. Registration must happen before events
// are dispatched.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	r := &route{command: command, handle: h, attrs: commandAttr(command)}
	for _, opt := range opts {
		opt(r)
	}

	d.mu.Lock()
	d.routes[command] = r
	d.mu.Unlock()

	if r.queue != nil {
		d.wg.Add(1)
		go d.drain(r)
	}
}

// Dispatch routes an event to its handler. A zero Timestamp is set to now.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	r, ok := d.routes[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if r.queue != nil {
		return d.enqueue(r, e)
	}
	return d.call(r, e)
}

// HasHandler reports whether command is registered.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[command]
	return ok
}

// Commands returns the registered commands in sorted order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.routes))
	for cmd := range d.routes {
		out = append(out, cmd)
	}
	sort.Strings(out)
	return out
}

// Close stops accepting queued events and waits until the queued ones are handled.
// Synchronous routes keep working.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, r := range d.routes {
		if r.queue != nil {
			close(r.queue)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) queued() []*route {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*route
	for _, r := range d.routes {
		if r.queue != nil {
			out = append(out, r)
		}
	}
	return out
}

func (d *Dispatcher) enqueue(r *route, e Event) (any, error) {
	// held across the send so Close cannot close the channel underneath it
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	if r.block {
		r.queue <- e
		return Queued, nil
	}
	select {
	case r.queue <- e:
		return Queued, nil
	default:
		d.stats.dropped.Add(context.Background(), 1, r.attrs)
		return nil, fmt.Errorf("%w: %s", ErrQueueFull, r.command)
	}
}

func (d *Dispatcher) drain(r *route) {
	defer d.wg.Done()
	for e := range r.queue {
		if _, err := d.call(r, e); err != nil {
			d.logger.Error("buffered event failed", "command", r.command, "error", err)
		}
	}
}

func (d *Dispatcher) call(r *route, e Event) (any, error) {
	start := time.Now()
	if r.logged {
		d.logger.Debug("handling event", "command", r.command, "args", len(e.Args))
	}

	result, err := r.handle(e)

	ctx := context.Background()
	d.stats.processed.Add(ctx, 1, r.attrs)
	if err != nil {
		d.stats.failed.Add(ctx, 1, r.attrs)
	}
	if r.logged {
		if err != nil {
			d.logger.Error("event failed", "command", r.command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", r.command, "duration", time.Since(start))
		}
	}
	return result, err
}
