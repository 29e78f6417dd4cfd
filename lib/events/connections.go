package events

import (
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"github.com/ValentinKolb/dAudit/lib/settings"
	"io"
	"sync"
)

// Connection is the shared, fully wired store access: the pipeline ends in the terminal handler
// and closer releases the terminal's resources
type Connection struct {
	Handler  docstore.Handler
	Settings settings.ThrottleSettings
	closer   io.Closer
}

// OpenFunc opens a new connection configured by s
type OpenFunc func(s settings.ThrottleSettings) (*Connection, error)

// ConnectionManager owns the process-wide connection. The first caller that opens it
// successfully decides its settings, later callers get the same connection. A failed open
// leaves the manager empty so the next caller tries again.
type ConnectionManager struct {
	mu   sync.Mutex
	conn *Connection
}

// DefaultConnections is the connection manager shared by every Events instance of the process
// unless WithConnections is used
var DefaultConnections = &ConnectionManager{}

// Get returns the shared connection, opening it with open if it does not exist yet.
// A caller whose settings differ from the ones the connection was opened with is warned,
// its settings only apply to its own Events instance.
func (m *ConnectionManager) Get(s settings.ThrottleSettings, open OpenFunc) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		if !m.conn.Settings.Equal(s) {
			log.Warningf("The shared connection is already configured, the differing settings of this instance are not applied to it")
		}
		return m.conn, nil
	}

	conn, err := open(s)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	conn.Settings = s
	m.conn = conn

	log.Debugf("Opened shared connection with settings:%s", s.String())
	return conn, nil
}

// Close closes the shared connection, the next Get opens a new one
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn == nil || conn.closer == nil {
		return nil
	}
	return conn.closer.Close()
}
