package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"

	"reflow_oven/internal/events"
	"reflow_oven/internal/logger"
)

var (
	ErrUnknownCommand = errors.New("link: unknown command")
	ErrClosed         = errors.New("link: peer closed the line")
)

// HandlerFunc executes one inbound command.
type HandlerFunc func(ctx context.Context, arg events.Payload) error

// Router maps command names to handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRouter() *Router {
	r := &Router{handlers: make(map[string]HandlerFunc)}
	r.Handle(CmdPing, func(context.Context, events.Payload) error { return nil })
	return r
}

func (r *Router) Handle(name string, fn HandlerFunc) {
	r.mu.Lock()
	r.handlers[name] = fn
	r.mu.Unlock()
}

func (r *Router) Dispatch(ctx context.Context, c Command) error {
	r.mu.RLock()
	fn, ok := r.handlers[c.Name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, c.Name)
	}
	return fn(ctx, c.Arg)
}

// OpenSerial opens the secondary controller's port in 8N1 at baud.
func OpenSerial(port string, baud int) (io.ReadWriteCloser, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	return p, nil
}

// Link forwards bus events out and dispatches commands in.
type Link struct {
	rw     io.ReadWriteCloser
	enc    *Encoder
	dec    *Decoder
	router *Router
	bus    *events.Bus
	log    *logger.Logger
	queue  int
}

func New(rw io.ReadWriteCloser, router *Router, bus *events.Bus, log *logger.Logger) *Link {
	return &Link{
		rw:     rw,
		enc:    NewEncoder(rw),
		dec:    NewDecoder(rw),
		router: router,
		bus:    bus,
		log:    log.Named("link"),
		queue:  256,
	}
}

// Run blocks until ctx is done or the line fails. The port is closed on return.
func (l *Link) Run(ctx context.Context) error {
	sub := l.bus.Subscribe(l.queue)
	defer l.bus.Unsubscribe(sub)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		// unblocks the reader
		_ = l.rw.Close()
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-sub.C():
				if err := l.enc.Encode(Message{Kind: KindEvent, Event: &ev}); err != nil {
					return fmt.Errorf("forward event %s/%s: %w", ev.Topic, ev.Name, err)
				}
			}
		}
	})
	g.Go(func() error {
		return l.readLoop(gctx)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (l *Link) readLoop(ctx context.Context) error {
	for {
		m, err := l.dec.Decode()
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				l.log.Warnw("link_frame_dropped", "err", err)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return ErrClosed
			}
			return fmt.Errorf("read link: %w", err)
		}
		if m.Kind != KindCommand {
			l.log.Debugw("link_frame_ignored", "kind", string(m.Kind))
			continue
		}
		l.serve(ctx, *m.Command)
	}
}

func (l *Link) serve(ctx context.Context, c Command) {
	reply := Reply{Seq: c.Seq, OK: true}
	if err := l.router.Dispatch(ctx, c); err != nil {
		reply.OK = false
		reply.Error = err.Error()
		l.log.Warnw("link_command_failed", "name", c.Name, "seq", c.Seq, "err", err)
	} else {
		l.log.Debugw("link_command", "name", c.Name, "seq", c.Seq)
	}
	if err := l.enc.Encode(Message{Kind: KindReply, Reply: &reply}); err != nil {
		l.log.Warnw("link_reply_failed", "seq", c.Seq, "err", err)
	}
}
