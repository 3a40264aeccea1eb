package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"transferWatch/internal/metrics"
	"transferWatch/internal/model"
)

// Destination delivers messages to one target.
type Destination interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Config bounds retries per destination.
type Config struct {
	// BacklogWarn logs a warning each time a destination backlog reaches a
	// multiple of it. Messages are never dropped.
	BacklogWarn int
	// Attempts caps deliveries per message; Backoff grows linearly between them.
	Attempts    int
	Backoff     time.Duration
	SendTimeout time.Duration
	// DrainTimeout bounds delivery of the remaining backlog after shutdown.
	DrainTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BacklogWarn <= 0 {
		c.BacklogWarn = 256
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 2 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 15 * time.Second
	}
	return c
}

// route is an unbounded FIFO backlog for one destination.
type route struct {
	dest Destination

	mu      sync.Mutex
	pending []Message
	wake    chan struct{}
}

func newRoute(dest Destination) *route {
	return &route{dest: dest, wake: make(chan struct{}, 1)}
}

func (r *route) push(msg Message) int {
	r.mu.Lock()
	r.pending = append(r.pending, msg)
	depth := len(r.pending)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return depth
}

func (r *route) pop() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return Message{}, false
	}
	msg := r.pending[0]
	r.pending[0] = Message{}
	r.pending = r.pending[1:]
	return msg, true
}

func (r *route) depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Dispatcher fans events out to destinations. Each destination has its own
// backlog and worker, so a slow or failing one never holds up another.
type Dispatcher struct {
	cfg       Config
	formatter Formatter
	logger    *zap.Logger
	routes    []*route

	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(cfg Config, formatter Formatter, logger *zap.Logger, destinations ...Destination) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		cfg:       cfg,
		formatter: formatter,
		logger:    logger,
		sleep:     sleepContext,
	}
	for _, dest := range destinations {
		d.routes = append(d.routes, newRoute(dest))
	}
	return d
}

// Dispatch formats the event and appends it to every destination backlog.
// It never blocks and never drops.
func (d *Dispatcher) Dispatch(_ context.Context, event model.TransferEvent) {
	d.enqueue(Message{
		Text:      d.formatter.Format(event),
		Direction: event.Direction,
		Event:     &event,
	})
}

// Broadcast enqueues a plain text message on every destination.
func (d *Dispatcher) Broadcast(_ context.Context, text string) {
	d.enqueue(Message{Text: text})
}

func (d *Dispatcher) enqueue(msg Message) {
	for _, r := range d.routes {
		depth := r.push(msg)
		metrics.DispatchQueueDepth.WithLabelValues(r.dest.Name()).Set(float64(depth))
		if depth%d.cfg.BacklogWarn == 0 {
			d.logger.Warn("destination backlog growing",
				zap.String("destination", r.dest.Name()),
				zap.Int("pending", depth),
			)
		}
	}
}

// Run starts one worker per destination and blocks until ctx is done. Each
// worker then delivers its remaining backlog within DrainTimeout.
func (d *Dispatcher) Run(ctx context.Context) error {
	if len(d.routes) == 0 {
		return fmt.Errorf("no notification destinations configured")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, r := range d.routes {
		r := r
		g.Go(func() error {
			d.work(ctx, r)
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) work(ctx context.Context, r *route) {
	for {
		for ctx.Err() == nil {
			msg, ok := r.pop()
			if !ok {
				break
			}
			metrics.DispatchQueueDepth.WithLabelValues(r.dest.Name()).Set(float64(r.depth()))
			_ = d.deliver(ctx, r.dest, msg)
		}

		select {
		case <-ctx.Done():
			d.drain(ctx, r)
			return
		case <-r.wake:
		}
	}
}

func (d *Dispatcher) drain(parent context.Context, r *route) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.cfg.DrainTimeout)
	defer cancel()

	for {
		if ctx.Err() != nil {
			if left := r.depth(); left > 0 {
				metrics.DispatchTotal.WithLabelValues(r.dest.Name(), "abandoned").Add(float64(left))
				d.logger.Error("drain timeout, undelivered messages left",
					zap.String("destination", r.dest.Name()),
					zap.Int("pending", left),
				)
			}
			return
		}
		msg, ok := r.pop()
		if !ok {
			return
		}
		metrics.DispatchQueueDepth.WithLabelValues(r.dest.Name()).Set(float64(r.depth()))
		_ = d.deliver(ctx, r.dest, msg)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, dest Destination, msg Message) error {
	for attempt := 1; ; attempt++ {
		msg.Attempt = attempt
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		err := dest.Send(sendCtx, msg)
		cancel()
		if err == nil {
			metrics.DispatchTotal.WithLabelValues(dest.Name(), "sent").Inc()
			return nil
		}

		if attempt >= d.cfg.Attempts || ctx.Err() != nil {
			metrics.DispatchTotal.WithLabelValues(dest.Name(), "failed").Inc()
			d.logger.Error("notification delivery failed",
				zap.String("destination", dest.Name()),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return err
		}

		delay := d.cfg.Backoff * time.Duration(attempt)
		metrics.DispatchTotal.WithLabelValues(dest.Name(), "retry").Inc()
		d.logger.Warn("notification delivery retry",
			zap.String("destination", dest.Name()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := d.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
