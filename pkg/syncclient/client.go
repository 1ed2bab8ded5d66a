// Package syncclient keeps one long-lived connection to a sync server for a single room, reconnecting with backoff. It
// moves opaque payloads only; sealing and applying them is up to the caller.
package syncclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astromechza/tasklens-sync/pkg/protocol"
)

var ErrQueueFull = errors.New("outbound queue is full")

type Options struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8080/sync.
	URL          string
	ClientID     string
	RoomKey      string
	LastSequence int64
	Backoff      Backoff
	QueueSize    int
	Dialer       *websocket.Dialer
	Logger       *slog.Logger
}

type Client struct {
	opts    Options
	log     *slog.Logger
	backoff Backoff

	outbound chan []byte
	wake     chan struct{}

	lock          sync.Mutex
	state         State
	lastSequence  int64
	onChange      func(protocol.ChangeOccurred) error
	onConnect     func(context.Context) error
	onStateChange func(State)
}

func New(opts Options) (*Client, error) {
	if opts.URL == "" || opts.ClientID == "" || opts.RoomKey == "" {
		return nil, errors.New("url, client id and room key are required")
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}
	if opts.Backoff.Initial <= 0 || opts.Backoff.Max <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		opts:         opts,
		log:          opts.Logger.With("room", opts.RoomKey, "client", opts.ClientID),
		backoff:      opts.Backoff,
		outbound:     make(chan []byte, opts.QueueSize),
		wake:         make(chan struct{}, 1),
		lastSequence: opts.LastSequence,
	}, nil
}

// OnChange registers the handler for updates submitted by other clients. Handler errors are logged and the update is
// still counted as received.
func (c *Client) OnChange(fn func(protocol.ChangeOccurred) error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onChange = fn
}

// OnConnect runs after every successful handshake, before any queued submission is written. It is the place to Submit
// the full local state so that anything lost while disconnected reaches the room.
func (c *Client) OnConnect(fn func(context.Context) error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onConnect = fn
}

func (c *Client) OnStateChange(fn func(State)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onStateChange = fn
}

func (c *Client) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// LastSequence is the highest sequence received so far; persist it to resume from there.
func (c *Client) LastSequence() int64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.lastSequence
}

// Submit queues a payload for the room. It never blocks.
func (c *Client) Submit(payload []byte) error {
	select {
	case c.outbound <- payload:
		return nil
	default:
		return ErrQueueFull
	}
}

// Foreground skips the current backoff wait, e.g. when the app returns to the foreground. It does nothing unless the
// client is Disconnected.
func (c *Client) Foreground() {
	if c.State() != Disconnected {
		return
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) setState(s State) {
	c.lock.Lock()
	changed := c.state != s
	c.state = s
	fn := c.onStateChange
	c.lock.Unlock()
	if changed {
		c.log.Debug("state changed", "state", s)
		if fn != nil {
			fn(s)
		}
	}
}

// Run connects and reconnects until the context is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		c.setState(Connecting)
		// a wake that raced the previous wait must not cut the next one short
		select {
		case <-c.wake:
		default:
		}
		err := c.session(ctx)
		if ctx.Err() != nil {
			c.setState(Disconnected)
			return ctx.Err()
		}
		if err != nil {
			c.log.Warn("sync connection failed", "err", err)
			c.setState(Error)
		}
		c.setState(Disconnected)

		wait := c.backoff.Next()
		c.log.Info("reconnecting", "in", wait)
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-c.wake:
			t.Stop()
			c.backoff.Reset()
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	if err := c.write(conn, protocol.Hello{
		ClientID:     c.opts.ClientID,
		RoomKey:      c.opts.RoomKey,
		LastSequence: c.LastSequence(),
	}); err != nil {
		return err
	}
	c.setState(Connected)
	c.backoff.Reset()
	c.log.Info("connected", "last_sequence", c.LastSequence())

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.lock.Lock()
	onConnect := c.onConnect
	c.lock.Unlock()
	if onConnect != nil {
		if err := onConnect(sessionCtx); err != nil {
			return fmt.Errorf("failed to run connect hook: %w", err)
		}
	}

	var readErr, writeErr error
	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		defer conn.Close()
		readErr = c.readLoop(conn)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()
		writeErr = c.writeLoop(sessionCtx, conn)
	}()

	wg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return errors.Join(readErr, writeErr)
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
		if mt != websocket.TextMessage {
			return errors.New("unexpected binary frame")
		}
		msg, err := protocol.DecodeServer(raw)
		if err != nil {
			return err
		}
		change, ok := msg.(protocol.ChangeOccurred)
		if !ok {
			return fmt.Errorf("unexpected %T", msg)
		}
		if change.RoomKey != c.opts.RoomKey {
			return fmt.Errorf("received an update for room %q", change.RoomKey)
		}

		c.lock.Lock()
		if change.SequenceID > c.lastSequence {
			c.lastSequence = change.SequenceID
		}
		handler := c.onChange
		c.lock.Unlock()

		if change.SourceClientID == c.opts.ClientID || handler == nil {
			continue
		}
		if err := handler(change); err != nil {
			c.log.Error("failed to handle update", "sequence", change.SequenceID, "err", err)
		}
	}
}

// writeLoop drains the outbound queue. A payload taken from the queue is lost if the write fails; the connect hook
// resends full state on the next connection.
func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case payload := <-c.outbound:
			if err := c.write(conn, protocol.SubmitChange{RoomKey: c.opts.RoomKey, Payload: payload}); err != nil {
				return err
			}
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			return nil
		}
	}
}

func (c *Client) write(conn *websocket.Conn, m protocol.ClientMessage) error {
	raw, err := protocol.EncodeClient(m)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
