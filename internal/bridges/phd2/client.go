package phd2

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Connection tuning defaults. Reconnection uses a fixed delay rather than
// backoff: PHD2 runs on the same LAN and is expected to reappear quickly
// after the operator restarts it.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultReconnectDelay = 5 * time.Second
	writeTimeout          = 5 * time.Second

	// maxLineBytes bounds a single newline-delimited message. PHD2 lines
	// are a few hundred bytes; anything near this limit is garbage.
	maxLineBytes = 256 * 1024
)

// Connection-scoped RPC ids. The pending table is reset on every new
// connection, so fixed ids are unambiguous.
const (
	rpcIDAppState   = 1
	rpcIDPixelScale = 2
)

// State represents the client's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateTerminated
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Logger interface for structured logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// EventHandler receives parsed protocol traffic. Methods are invoked from
// the client's read loop, one at a time.
type EventHandler interface {
	// OnConnected fires when a connection is established, before any
	// RPC requests are sent on it.
	OnConnected()

	// OnDisconnected fires when an established connection is lost.
	// err is nil on orderly shutdown.
	OnDisconnected(err error)

	// OnAppState delivers the response to the application state query.
	OnAppState(state string)

	// OnPixelScale delivers the camera pixel scale in arcsec per pixel.
	OnPixelScale(scale float64)

	// OnGuideStep delivers one parsed guiding correction sample.
	OnGuideStep(sample GuideSample)

	// OnStarLost fires when the guide star drops out of tracking.
	OnStarLost()
}

// ClientConfig holds the connection parameters for a Client.
type ClientConfig struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
}

// Client maintains a long-lived TCP connection to a PHD2 event server,
// reading newline-delimited JSON messages and dispatching them to an
// EventHandler. On connection loss it reconnects indefinitely with a
// fixed delay until its context is cancelled.
type Client struct {
	cfg     ClientConfig
	handler EventHandler

	state atomic.Int32

	conn   net.Conn
	connMu sync.Mutex

	// pending maps in-flight RPC ids to method names, per connection.
	pending   map[int]string
	pendingMu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex

	// counters
	connectsTotal   atomic.Uint64
	reconnectsTotal atomic.Uint64
	samplesRx       atomic.Uint64
	starLostRx      atomic.Uint64
	eventsRx        atomic.Uint64
	linesSkipped    atomic.Uint64
	lastActivity    atomic.Int64 // unix nanos, 0 when never active
}

// Stats is a point-in-time snapshot of client counters.
type Stats struct {
	State           string
	Connected       bool
	ConnectsTotal   uint64
	ReconnectsTotal uint64
	EventsReceived  uint64
	SamplesReceived uint64
	StarLostEvents  uint64
	LinesSkipped    uint64
	LastActivity    time.Time
}

// NewClient creates a client for the given server. The handler must not
// be nil.
func NewClient(cfg ClientConfig, handler EventHandler) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		pending: make(map[int]string),
	}
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// IsConnected returns true while a server connection is established.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() Stats {
	var last time.Time
	if nanos := c.lastActivity.Load(); nanos != 0 {
		last = time.Unix(0, nanos)
	}
	return Stats{
		State:           c.State().String(),
		Connected:       c.IsConnected(),
		ConnectsTotal:   c.connectsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		EventsReceived:  c.eventsRx.Load(),
		SamplesReceived: c.samplesRx.Load(),
		StarLostEvents:  c.starLostRx.Load(),
		LinesSkipped:    c.linesSkipped.Load(),
		LastActivity:    last,
	}
}

// HealthCheck reports whether the server connection is up.
func (c *Client) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Run connects and processes messages until ctx is cancelled. Each lost
// connection is followed by a fixed-delay reconnect attempt; Run never
// gives up on its own. Returns nil on orderly shutdown.
func (c *Client) Run(ctx context.Context) error {
	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			c.state.Store(int32(StateTerminated))
			return nil
		}

		c.state.Store(int32(StateConnecting))
		if attempt > 0 {
			c.reconnectsTotal.Add(1)
		}

		conn, err := c.dial(ctx, addr)
		if err != nil {
			c.state.Store(int32(StateDisconnected))
			if ctx.Err() != nil {
				c.state.Store(int32(StateTerminated))
				return nil
			}
			c.logWarn("connection attempt failed",
				"addr", addr,
				"error", err,
				"retry_in", c.cfg.ReconnectDelay.String())
			if !c.sleep(ctx) {
				c.state.Store(int32(StateTerminated))
				return nil
			}
			continue
		}

		sessionErr := c.runSession(ctx, conn)
		c.state.Store(int32(StateDisconnected))
		c.handler.OnDisconnected(sessionErr)

		if ctx.Err() != nil {
			c.state.Store(int32(StateTerminated))
			return nil
		}
		c.logWarn("connection lost",
			"addr", addr,
			"error", sessionErr,
			"retry_in", c.cfg.ReconnectDelay.String())
		if !c.sleep(ctx) {
			c.state.Store(int32(StateTerminated))
			return nil
		}
	}
}

// dial establishes one TCP connection, bounded by the configured timeout
// and by ctx.
func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return conn, nil
}

// runSession services one established connection until it fails or ctx is
// cancelled. It resets per-connection state, issues the handshake RPCs,
// then reads messages line by line.
func (c *Client) runSession(ctx context.Context, conn net.Conn) error {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	// Closing the conn is the only way to unblock a pending Read when
	// ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer func() {
		stop()
		conn.Close()
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
	}()

	c.pendingMu.Lock()
	c.pending = make(map[int]string)
	c.pendingMu.Unlock()

	c.state.Store(int32(StateConnected))
	c.connectsTotal.Add(1)
	c.logInfo("connected", "addr", conn.RemoteAddr().String())

	// Per-connection state (pixel scale) must be cleared before any
	// response can arrive.
	c.handler.OnConnected()

	if err := c.sendRequest(conn, methodGetAppState, rpcIDAppState); err != nil {
		return err
	}
	if err := c.sendRequest(conn, methodGetPixelScale, rpcIDPixelScale); err != nil {
		return err
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		c.lastActivity.Store(time.Now().UnixNano())
		c.handleLine(line)
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("reading from server: %w", err)
	}
	return errors.New("server closed connection")
}

// sendRequest registers the RPC id as pending and writes the request line.
func (c *Client) sendRequest(conn net.Conn, method string, id int) error {
	c.pendingMu.Lock()
	c.pending[id] = method
	c.pendingMu.Unlock()

	data, err := encodeRequest(method, id)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("sending %s request: %w", method, err)
	}
	return nil
}

// handleLine decodes and dispatches a single message. Decode failures are
// logged and swallowed; a bad line never costs the connection.
func (c *Client) handleLine(line []byte) {
	msg, err := DecodeMessage(line)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnrecognizedMessage):
			c.logDebug("ignoring unrecognized message", "line", string(line))
		default:
			c.linesSkipped.Add(1)
			c.logWarn("skipping malformed line", "error", err, "line", string(line))
		}
		return
	}

	switch msg.Kind {
	case KindRPCResponse:
		c.handleResponse(msg.Response)
	case KindEvent:
		c.eventsRx.Add(1)
		c.handleEvent(msg.Event)
	}
}

// handleResponse matches a response to its pending request by id.
func (c *Client) handleResponse(resp *RPCResponse) {
	c.pendingMu.Lock()
	method, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logDebug("response for unknown request id", "id", resp.ID)
		return
	}

	switch method {
	case methodGetAppState:
		var state string
		if err := json.Unmarshal(resp.Result, &state); err != nil {
			state = string(resp.Result)
		}
		c.handler.OnAppState(state)
	case methodGetPixelScale:
		scale, err := resp.NumericResult()
		if err != nil {
			c.logWarn("pixel scale response is not numeric",
				"result", string(resp.Result),
				"error", err)
			return
		}
		c.handler.OnPixelScale(scale)
	}
}

// handleEvent dispatches a server event by name. Events the bridge does
// not consume are logged at debug and dropped.
func (c *Client) handleEvent(e *ServerEvent) {
	switch e.Name {
	case EventGuideStep:
		c.samplesRx.Add(1)
		c.handler.OnGuideStep(e.GuideSample())
	case EventStarLost:
		c.starLostRx.Add(1)
		c.handler.OnStarLost()
	default:
		c.logDebug("ignoring event", "event", e.Name)
	}
}

// sleep waits out the reconnect delay. Returns false if ctx was cancelled
// during the wait.
func (c *Client) sleep(ctx context.Context) bool {
	timer := time.NewTimer(c.cfg.ReconnectDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
