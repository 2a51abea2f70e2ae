package retransmission

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"taifexflow/logger"
)

// Connection lifecycle states.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateLoggingIn
	StateAwaitingLogin
	StateLoggedIn
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateLoggingIn:
		return "logging_in"
	case StateAwaitingLogin:
		return "awaiting_login"
	case StateLoggedIn:
		return "logged_in"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var ErrConnectionLost = errors.New("recovery connection lost")

// Endpoint identifies one recovery server plus the session credentials
// it expects.
type Endpoint struct {
	IP        string
	Port      int
	SessionID uint16
	Password  uint64
}

func (e Endpoint) addr() string {
	return net.JoinHostPort(e.IP, fmt.Sprintf("%d", e.Port))
}

// Config carries the client tuning knobs. Zero values fall back to the
// defaults below.
type Config struct {
	Primary *Endpoint
	Backup  *Endpoint

	RecvTimeout       time.Duration
	ReconnectDelay    time.Duration
	LoginTimeout      time.Duration
	RequestsPerSecond float64
	RecoveredBuffer   int
}

const (
	defaultRecvTimeout    = time.Second
	defaultReconnectDelay = 5 * time.Second
	defaultLoginTimeout   = 10 * time.Second
	defaultRequestRate    = 10
	defaultRecoveredCap   = 1024
	defaultMultiplier     = 168
	requestQueueCap       = 256
	dialTimeout           = 5 * time.Second
)

// Client drives one recovery TCP session at a time on its own goroutine
// and hands recovered market-data frames to the pipeline over a bounded
// channel. It alternates between the primary and backup endpoints across
// reconnects.
type Client struct {
	cfg Config
	log *logger.Entry

	recovered chan []byte
	requests  chan DataRequest

	limiter *rate.Limiter

	state     atomic.Int32
	clientSeq atomic.Uint32

	writeMu sync.Mutex
	conn    net.Conn

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	useBackup bool
}

func NewClient(cfg Config, log *logger.Log) (*Client, error) {
	if cfg.Primary == nil && cfg.Backup == nil {
		return nil, errors.New("at least one recovery endpoint is required")
	}
	if cfg.RecvTimeout <= 0 {
		cfg.RecvTimeout = defaultRecvTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = defaultLoginTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestRate
	}
	if cfg.RecoveredBuffer <= 0 {
		cfg.RecoveredBuffer = defaultRecoveredCap
	}
	return &Client{
		cfg:       cfg,
		log:       log.WithComponent("retransmission_client"),
		recovered: make(chan []byte, cfg.RecoveredBuffer),
		requests:  make(chan DataRequest, requestQueueCap),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

// Recovered exposes the channel of recovered market-data frames. The
// pipeline thread is its only consumer.
func (c *Client) Recovered() <-chan []byte { return c.recovered }

// State reports the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

// Start launches the supervisor goroutine. It returns immediately;
// connection and login progress is observable through State.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("retransmission client already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(runCtx)
	}()
	return nil
}

// Stop signals shutdown, closes the socket and waits for the supervisor
// to return.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.closeConn()
	c.wg.Wait()
	c.state.Store(int32(StateDisconnected))
}

// Request queues a data request for the missing range. It never blocks
// the pipeline: when the queue is full the request is dropped with a
// warning and the gap stays open until the next one.
func (c *Client) Request(channel uint16, beginSeq uint64, count uint16) bool {
	req := DataRequest{ChannelID: channel, BeginSeq: uint32(beginSeq), RecoverNum: count}
	select {
	case c.requests <- req:
		return true
	default:
		c.log.WithFields(logger.Fields{
			"channel":   channel,
			"begin_seq": beginSeq,
			"count":     count,
		}).Warn("request queue full, recovery request dropped")
		return false
	}
}

// run is the supervisor loop: one session per iteration, alternating
// endpoints, bounded sleep between attempts.
func (c *Client) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		ep := c.pickEndpoint()
		if err := c.runSession(ctx, ep); err != nil && ctx.Err() == nil {
			c.log.WithError(err).WithField("server", ep.addr()).Warn("recovery session ended")
		}
		c.state.Store(int32(StateDisconnected))
		if ctx.Err() != nil {
			return
		}
		if waitForReconnect(ctx, c.cfg.ReconnectDelay) {
			return
		}
	}
}

// pickEndpoint alternates between primary and backup when both exist.
func (c *Client) pickEndpoint() Endpoint {
	primary, backup := c.cfg.Primary, c.cfg.Backup
	switch {
	case primary == nil:
		return *backup
	case backup == nil:
		return *primary
	}
	ep := *primary
	if c.useBackup {
		ep = *backup
	}
	c.useBackup = !c.useBackup
	return ep
}

func (c *Client) runSession(ctx context.Context, ep Endpoint) error {
	c.state.Store(int32(StateConnecting))
	conn, err := net.DialTimeout("tcp", ep.addr(), dialTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	c.setConn(conn)
	defer c.closeConn()

	c.log.WithField("server", ep.addr()).Info("connected to recovery server")

	c.state.Store(int32(StateLoggingIn))
	c.clientSeq.Store(0)
	login := LoginRequest{
		MultiplicationOperator: defaultMultiplier,
		CheckCode:              CheckCode(defaultMultiplier, ep.Password),
		SessionID:              ep.SessionID,
	}
	if err := c.send(TypeLoginRequest, login.marshal()); err != nil {
		return err
	}
	c.state.Store(int32(StateAwaitingLogin))

	sessCtx, sessCancel := context.WithCancel(ctx)
	defer sessCancel()

	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		c.requestWriter(sessCtx)
	}()
	defer writerWG.Wait()
	defer sessCancel()

	err = c.readLoop(sessCtx)
	return err
}

// requestWriter drains the request queue once the session is logged in,
// pacing sends with the rate limiter.
func (c *Client) requestWriter(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.requests:
			if err := c.limiter.Wait(ctx); err != nil {
				return
			}
			for c.State() != StateLoggedIn {
				if waitForReconnect(ctx, 50*time.Millisecond) {
					return
				}
			}
			if err := c.send(TypeDataRequest, req.marshal()); err != nil {
				c.log.WithError(err).Warn("failed to send data request")
				return
			}
			c.log.WithFields(logger.Fields{
				"channel":   req.ChannelID,
				"begin_seq": req.BeginSeq,
				"count":     req.RecoverNum,
			}).Info("data request sent")
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	var r reassembler
	buf := make([]byte, 64*1024)
	loginDeadline := time.Now().Add(c.cfg.LoginTimeout)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if c.State() == StateAwaitingLogin && time.Now().After(loginDeadline) {
			return fmt.Errorf("%w: login timed out", ErrProtocol)
		}

		conn := c.currentConn()
		if conn == nil {
			return ErrConnectionLost
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.RecvTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			r.feed(buf[:n])
			if err := c.drain(ctx, &r); err != nil {
				return err
			}
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
	}
}

// drain processes every complete segment currently buffered.
func (c *Client) drain(ctx context.Context, r *reassembler) error {
	for {
		kind, seg, skipped := r.next()
		if skipped > 0 {
			c.log.WithField("bytes", skipped).Warn("discarded unsynchronized bytes on recovery stream")
		}
		switch kind {
		case segmentIncomplete:
			if skipped > 0 {
				continue
			}
			return nil
		case segmentMarketFrame:
			out := make([]byte, len(seg))
			copy(out, seg)
			select {
			case c.recovered <- out:
			case <-ctx.Done():
				return nil
			}
		case segmentProtocol:
			if err := c.handleProtocol(r, seg); err != nil {
				return err
			}
		}
	}
}

func (c *Client) handleProtocol(r *reassembler, seg []byte) error {
	if err := verify(seg); err != nil {
		return err
	}
	h, err := parseHeader(seg)
	if err != nil {
		return err
	}
	payload := payloadOf(seg)

	switch h.MsgType {
	case TypeLoginResponse:
		resp, err := parseLoginResponse(payload)
		if err != nil {
			return err
		}
		c.log.WithField("channel", resp.ChannelID).Info("login response for channel")
	case TypeReady:
		c.state.Store(int32(StateLoggedIn))
		c.log.Info("recovery session ready")
	case TypeServerHeartbeat:
		if err := c.send(TypeClientHeartbeat, nil); err != nil {
			return err
		}
	case TypeDataResponse:
		resp, err := parseDataResponse(payload)
		if err != nil {
			return err
		}
		entry := c.log.WithFields(logger.Fields{
			"channel":   resp.ChannelID,
			"begin_seq": resp.BeginSeq,
			"count":     resp.RecoverNum,
			"status":    resp.Status,
		})
		if resp.Status != 0 {
			entry.Warn("data request failed")
		} else {
			entry.Info("data response received")
		}
		if len(resp.Embedded) > 0 {
			// Some venues pack the recovered frames inside the 102 payload
			// instead of streaming them after it.
			r.feed(resp.Embedded)
		}
	case TypeErrorNotification:
		note, err := parseErrorNotification(payload)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: server error notification status %d", ErrProtocol, note.Status)
	default:
		return fmt.Errorf("%w: unknown message type %d", ErrProtocol, h.MsgType)
	}
	return nil
}

// send serializes and writes one message; safe from both session
// goroutines.
func (c *Client) send(msgType uint16, payload []byte) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrConnectionLost
	}
	msg := encode(msgType, c.clientSeq.Add(1)-1, time.Now(), payload)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := conn.Write(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

func (c *Client) setConn(conn net.Conn) {
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
}

func (c *Client) currentConn() net.Conn {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn
}

func (c *Client) closeConn() {
	c.writeMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.writeMu.Unlock()
}

// waitForReconnect sleeps for delay unless the context ends first; it
// reports whether shutdown was requested.
func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
