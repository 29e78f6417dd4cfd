package base

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dAudit/rpc/common"
	"github.com/ValentinKolb/dAudit/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// ErrTransportClosed is returned by Send after Close
var ErrTransportClosed = errors.New("transport is closed")

var errIdleTimeout = errors.New("idle timeout exceeded")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Dial establishes a single connection, honouring the dial timeout and port mode of config
	Dial(ctx context.Context, endpoint string, config common.ClientConfig) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// link is one physical connection with its own reader goroutine and pending requests
type link struct {
	conn    net.Conn
	writeMu sync.Mutex
	pending *xsync.MapOf[uint64, chan responseResult]
	broken  atomic.Bool
}

// clientConnection is a logical connection slot to one endpoint. The physical link behind
// it is replaced when it breaks or stays idle longer than the idle timeout.
type clientConnection struct {
	endpoint string
	parent   *clientTransport
	slots    chan struct{} // bounds the requests in flight on this connection
	lastUsed atomic.Int64  // unix nano

	mu     sync.Mutex // protects link and closed
	link   *link
	closed bool
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex atomic.Uint64 // Round Robin
	nextRequestID atomic.Uint64
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{connector: connector}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Close all existing connections
	t.closeConnections()
	t.config = config

	connectionsPerEP := config.Connections()
	inFlight := max(1, config.MaxRequestsPerConnection)
	connections := make([]*clientConnection, 0, len(config.Endpoints)*connectionsPerEP)

	for _, endpoint := range config.Endpoints {
		for i := 0; i < connectionsPerEP; i++ {
			clientConn := &clientConnection{
				endpoint: endpoint,
				parent:   t,
				slots:    make(chan struct{}, inFlight),
			}

			// Establish the initial connection, a failed one is retried on first use
			if _, err := clientConn.current(); err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}
			connections = append(connections, clientConn)
			Logger.Debugf("Connected to %s (connection %d/%d)", endpoint, i+1, connectionsPerEP)
		}
	}

	if len(connections) == 0 {
		return fmt.Errorf("failed to connect to any endpoint")
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	Logger.Infof("Connected %d out of %d connections to %d endpoints using %s transport (%d requests in flight per connection)",
		len(connections), len(config.Endpoints)*connectionsPerEP, len(config.Endpoints), t.connector.GetName(), inFlight)

	return nil
}

func (t *clientTransport) Send(ctx context.Context, req []byte) ([]byte, error) {
	conn := t.getNextConnection()
	if conn == nil {
		return nil, fmt.Errorf("no active connections available")
	}

	// Wait for a free slot on the connection
	select {
	case conn.slots <- struct{}{}:
		defer func() { <-conn.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	l, err := conn.current()
	if err != nil {
		return nil, err
	}

	// Register the request before writing so a fast response finds its channel
	requestID := t.nextRequestID.Add(1)
	respCh := make(chan responseResult, 1)
	l.pending.Store(requestID, respCh)
	defer l.pending.Delete(requestID)

	if l.broken.Load() {
		return nil, fmt.Errorf("connection to %s lost", conn.endpoint)
	}

	if err := l.write(requestID, req, t.config.RequestTimeout); err != nil {
		conn.drop(l, err)
		return nil, fmt.Errorf("failed to send request to %s: %w", conn.endpoint, err)
	}

	var timeoutCh <-chan time.Time
	if t.config.RequestTimeout > 0 {
		timer := time.NewTimer(t.config.RequestTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case result := <-respCh:
		return result.data, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeoutCh:
		return nil, fmt.Errorf("request to %s timed out after %s", conn.endpoint, t.config.RequestTimeout)
	}
}

func (t *clientTransport) Close() error {
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	switch len(t.connections) {
	case 0:
		return nil
	case 1:
		return t.connections[0]
	}
	return t.connections[t.nextConnIndex.Add(1)%uint64(len(t.connections))]
}

// closeConnections closes all active connections
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	connections := t.connections
	t.connections = nil
	t.connectionsMu.Unlock()

	for _, conn := range connections {
		conn.close()
	}
}

// current returns the live link, dialing a new one if there is none or the old one was idle
// for longer than the idle timeout
func (c *clientConnection) current() (*link, error) {
	c.mu.Lock()
	config := c.parent.config
	if stale := c.link; stale != nil && config.IdleTimeout > 0 {
		if idle := time.Since(time.Unix(0, c.lastUsed.Load())); idle > config.IdleTimeout {
			Logger.Debugf("Connection to %s was idle for %s, reconnecting", c.endpoint, idle.Round(time.Millisecond))
			c.link = nil
			// drop takes c.mu and fails the requests still waiting on the old link
			c.mu.Unlock()
			c.drop(stale, errIdleTimeout)
			c.mu.Lock()
		}
	}
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrTransportClosed
	}

	if c.link == nil {
		l, err := c.dial()
		if err != nil {
			return nil, err
		}
		c.link = l
		go c.readResponses(l)
	}

	c.lastUsed.Store(time.Now().UnixNano())
	return c.link, nil
}

// dial opens and upgrades a new physical connection, c.mu must be held
func (c *clientConnection) dial() (*link, error) {
	config := c.parent.config

	ctx := context.Background()
	if config.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.DialTimeout)
		defer cancel()
	}

	conn, err := c.parent.connector.Dial(ctx, c.endpoint, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}

	if err := c.parent.connector.UpgradeConnection(conn, config); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", c.endpoint, err)
	}

	return &link{
		conn:    conn,
		pending: xsync.NewMapOf[uint64, chan responseResult](),
	}, nil
}

// drop closes a broken link and fails all its pending requests
func (c *clientConnection) drop(l *link, cause error) {
	if l.broken.Swap(true) {
		return
	}

	c.mu.Lock()
	if c.link == l {
		c.link = nil
	}
	closed := c.closed
	c.mu.Unlock()

	_ = l.conn.Close()
	if !closed && !errors.Is(cause, net.ErrClosed) && !errors.Is(cause, errIdleTimeout) {
		Logger.Warningf("Connection to %s lost: %v", c.endpoint, cause)
	}

	l.pending.Range(func(id uint64, _ chan responseResult) bool {
		if ch, ok := l.pending.LoadAndDelete(id); ok {
			ch <- responseResult{err: fmt.Errorf("connection to %s lost: %w", c.endpoint, cause)}
		}
		return true
	})
}

// close closes the connection for good
func (c *clientConnection) close() {
	c.mu.Lock()
	c.closed = true
	l := c.link
	c.link = nil
	c.mu.Unlock()

	if l != nil {
		c.drop(l, ErrTransportClosed)
	}
}

// readResponses reads responses of one link and distributes them to waiting requests
func (c *clientConnection) readResponses(l *link) {
	for {
		requestID, data, err := readFrame(l.conn, nil)
		if err != nil {
			c.drop(l, err)
			return
		}

		if respCh, found := l.pending.LoadAndDelete(requestID); found {
			respCh <- responseResult{data: data}
		} else {
			// the request gave up (timeout or cancellation) before the response arrived
			Logger.Debugf("Dropping response for unknown request ID %d from %s", requestID, c.endpoint)
		}
	}
}

// write sends one frame, writes of concurrent requests are serialized
func (l *link) write(requestID uint64, data []byte, timeout time.Duration) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if timeout > 0 {
		if err := l.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	return writeFrame(l.conn, requestID, data)
}
