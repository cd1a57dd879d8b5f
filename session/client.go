// Package session connects to the game server and plays host to the scan
// machine: it delivers every received line to a handler, answers session
// variable lookups, echoes local notices, and sends outbound commands in
// order, waiting out any delay attached to a command first.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ziutek/telnet"

	"inventoryview/internal/ratelimit"
	"inventoryview/scan"
)

const (
	defaultDialTimeout = 30 * time.Second
	defaultReadTimeout = 30 * time.Minute
	outboundQueueDepth = 64
)

var errNotConnected = errors.New("session: not connected")

// LineHandler receives each line from the game with its line terminator
// removed and leading whitespace intact.
type LineHandler func(raw string)

// Options configures a Client.
type Options struct {
	Host          string
	Port          int
	Transport     string // "native" (plain TCP) or "ziutek" (telnet negotiation stripped)
	CharacterName string
	Guild         string
	Login         []string // Lines sent right after each connect.
	LoginDelay    time.Duration
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	Reconnect     bool
	Echo          io.Writer // Local notices; nil discards them.
}

// Client is a line-oriented connection to the game.
type Client struct {
	opts    Options
	handler LineHandler

	mu        sync.RWMutex
	conn      net.Conn
	writer    *bufio.Writer
	connected bool
	vars      map[string]string

	echoMu   sync.Mutex
	dropLog  *ratelimit.Counter
	outbound chan scan.Outbound
	shutdown chan struct{}
	reconn   chan struct{}
	stopOnce sync.Once
}

// NewClient returns a disconnected client. handler may be nil.
func NewClient(opts Options, handler LineHandler) *Client {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.Echo == nil {
		opts.Echo = io.Discard
	}
	return &Client{
		opts:    opts,
		handler: handler,
		vars: map[string]string{
			scan.VarCharacterName: opts.CharacterName,
			scan.VarGuild:         opts.Guild,
		},
		dropLog:  ratelimit.NewCounter(30 * time.Second),
		outbound: make(chan scan.Outbound, outboundQueueDepth),
		shutdown: make(chan struct{}),
		reconn:   make(chan struct{}, 1),
	}
}

// SetHandler replaces the line handler. Call before Connect.
func (c *Client) SetHandler(h LineHandler) {
	c.handler = h
}

// Connect dials the game and starts the read loop, the outbound sender and,
// when enabled, the reconnect supervisor. The first dial is synchronous so a
// failure reaches the caller.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.establishConnection(); err != nil {
		return err
	}
	go c.sendLoop(ctx)
	if c.opts.Reconnect {
		go c.connectionSupervisor()
	}
	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-c.shutdown:
		}
	}()
	return nil
}

func (c *Client) establishConnection() error {
	addr := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
	log.Printf("Session: connecting to %s (%s transport)...", addr, c.transportName())

	conn, err := c.dial(addr)
	if err != nil {
		return fmt.Errorf("session: connect to %s: %w", addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.writer = bufio.NewWriter(conn)
	c.connected = true
	c.mu.Unlock()

	log.Printf("Session: connection established")
	go c.handleLogin()
	go c.readLoop(conn)
	return nil
}

func (c *Client) dial(addr string) (net.Conn, error) {
	if strings.EqualFold(c.opts.Transport, "ziutek") {
		tconn, err := telnet.DialTimeout("tcp", addr, c.opts.DialTimeout)
		if err != nil {
			return nil, err
		}
		tconn.SetUnixWriteMode(true)
		return tconn, nil
	}
	return net.DialTimeout("tcp", addr, c.opts.DialTimeout)
}

func (c *Client) transportName() string {
	if strings.EqualFold(c.opts.Transport, "ziutek") {
		return "ziutek"
	}
	return "native"
}

func (c *Client) handleLogin() {
	if len(c.opts.Login) == 0 {
		return
	}
	if c.opts.LoginDelay > 0 {
		timer := time.NewTimer(c.opts.LoginDelay)
		select {
		case <-timer.C:
		case <-c.shutdown:
			timer.Stop()
			return
		}
	}
	log.Printf("Session: sending %d login lines", len(c.opts.Login))
	for _, line := range c.opts.Login {
		if err := c.writeLine(line); err != nil {
			log.Printf("Session: login write failed: %v", err)
			return
		}
	}
}

func (c *Client) readLoop(conn net.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.connected = false
		}
		c.mu.Unlock()
		conn.Close()
	}()

	reader := bufio.NewReader(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		line, err := reader.ReadString('\n')
		if line != "" && (err == nil || errors.Is(err, io.EOF)) {
			c.deliver(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if c.isShutdown() {
				return
			}
			log.Printf("Session: read error: %v", err)
			c.requestReconnect(err)
			return
		}
	}
}

func (c *Client) deliver(raw string) {
	if c.handler != nil {
		c.handler(raw)
	}
}

// connectionSupervisor redials with exponential backoff after the read loop
// reports a lost connection.
func (c *Client) connectionSupervisor() {
	const (
		initialDelay = 5 * time.Second
		maxDelay     = 60 * time.Second
	)
	for {
		select {
		case <-c.shutdown:
			return
		case <-c.reconn:
			delay := initialDelay
			for {
				if c.isShutdown() {
					return
				}
				log.Printf("Session: attempting reconnect...")
				err := c.establishConnection()
				if err == nil {
					break
				}
				log.Printf("Session: reconnect failed: %v (retry in %s)", err, delay)
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-c.shutdown:
					timer.Stop()
					return
				}
				delay *= 2
				if delay > maxDelay {
					delay = maxDelay
				}
			}
		}
	}
}

// Send queues commands for the game. They go out in the order given, each
// after its Delay has elapsed.
func (c *Client) Send(out ...scan.Outbound) {
	if len(out) > 0 && !c.IsConnected() {
		c.logDrop(len(out), errNotConnected)
		return
	}
	for _, o := range out {
		select {
		case c.outbound <- o:
		case <-c.shutdown:
			return
		}
	}
}

// SendText queues a plain line typed at the console.
func (c *Client) SendText(text string) {
	c.Send(scan.Outbound{Text: text})
}

func (c *Client) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case o := <-c.outbound:
			if o.Delay > 0 {
				log.Printf("Session: waiting %s before %q", o.Delay, o.Text)
				if !sleepWithContext(ctx, o.Delay) {
					return
				}
			}
			if err := c.writeLine(o.Text); err != nil {
				c.logDrop(1, err)
			}
		}
	}
}

func (c *Client) logDrop(n int, reason error) {
	suppressed, ok := c.dropLog.Allow()
	if !ok {
		return
	}
	if suppressed > 0 {
		log.Printf("Session: dropped %d outbound lines: %v (%d earlier drops not logged)", n, reason, suppressed)
		return
	}
	log.Printf("Session: dropped %d outbound lines: %v", n, reason)
}

func (c *Client) writeLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.writer == nil {
		return errNotConnected
	}
	if _, err := c.writer.WriteString(text + "\n"); err != nil {
		return err
	}
	return c.writer.Flush()
}

// Variable answers the session variables the scanner reads. "connected" is
// "1" while a connection is up and "0" otherwise.
func (c *Client) Variable(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name == scan.VarConnected {
		if c.connected {
			return "1"
		}
		return "0"
	}
	return c.vars[name]
}

// SetVariable overrides a session variable.
func (c *Client) SetVariable(name, value string) {
	c.mu.Lock()
	c.vars[name] = value
	c.mu.Unlock()
}

// Echo shows a local notice; it is never sent to the game.
func (c *Client) Echo(text string) {
	c.echoMu.Lock()
	defer c.echoMu.Unlock()
	fmt.Fprintln(c.opts.Echo, text)
}

// IsConnected reports whether a connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Stop closes the connection and ends every goroutine the client started.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		log.Printf("Session: stopping")
		close(c.shutdown)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connected = false
		c.mu.Unlock()
	})
}

func (c *Client) isShutdown() bool {
	select {
	case <-c.shutdown:
		return true
	default:
		return false
	}
}

func (c *Client) requestReconnect(reason error) {
	if c.isShutdown() || !c.opts.Reconnect {
		return
	}
	if reason != nil {
		log.Printf("Session: scheduling reconnect after error: %v", reason)
	}
	select {
	case c.reconn <- struct{}{}:
	default:
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
