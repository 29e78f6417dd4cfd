package common

import (
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/settings"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// EngineType selects the storage engine hosted by the server
type EngineType string

const (
	EngineMemory EngineType = "memory"
	EnginePebble EngineType = "pebble"
)

// ServerConfig holds all configuration parameters of the RPC server and its engine.
type ServerConfig struct {
	// Storage engine
	Engine     EngineType
	DataDir    string // pebble only
	SyncWrites bool   // pebble only

	// Throughput quota per partition, 0 disables the quota
	QuotaUnitsPerSecond float64
	QuotaBurst          int

	// Default page size of queries that do not set one
	PageSize int

	// Transport parameters
	Endpoint             string
	TimeoutSecond        int64
	WorkersPerConnection int
	ReuseAddr            bool // set SO_REUSEADDR on the listening socket
	TCPNoDelay           bool
	TCPKeepAliveSec      int

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Workers/Connection", strconv.Itoa(c.WorkersPerConnection))
	addField("Reuse Address", strconv.FormatBool(c.ReuseAddr))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Engine
	addSection("Engine")
	addField("Type", string(c.Engine))
	if c.Engine == EnginePebble {
		addField("Data Directory", c.DataDir)
		addField("Sync Writes", strconv.FormatBool(c.SyncWrites))
	}
	addField("Page Size", strconv.Itoa(c.PageSize))
	if c.QuotaUnitsPerSecond > 0 {
		addField("Quota", fmt.Sprintf("%.1f RU/s per partition (burst %d)", c.QuotaUnitsPerSecond, c.QuotaBurst))
	} else {
		addField("Quota", "disabled")
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds the connection parameters of a client transport
type ClientConfig struct {
	Endpoints              []string
	ConnectionsPerEndpoint int

	RequestTimeout time.Duration // per request, 0 means no timeout
	DialTimeout    time.Duration
	IdleTimeout    time.Duration // connections idle longer are re-established before use

	MaxRequestsPerConnection  int // in-flight requests per connection
	MaxConnectionsPerEndpoint int
	PortMode                  settings.PortReuseMode
}

// NewClientConfig derives a client configuration from throttle settings
func NewClientConfig(endpoints []string, connectionsPerEndpoint int, s settings.ThrottleSettings) ClientConfig {
	return ClientConfig{
		Endpoints:                 endpoints,
		ConnectionsPerEndpoint:    connectionsPerEndpoint,
		RequestTimeout:            time.Duration(s.RequestTimeoutInSeconds()) * time.Second,
		DialTimeout:               time.Duration(s.OpenTcpConnectionTimeoutSec()) * time.Second,
		IdleTimeout:               time.Duration(s.MaxIdleTimeoutMinutes()) * time.Minute,
		MaxRequestsPerConnection:  s.MaxRequestsPerTcpConnection(),
		MaxConnectionsPerEndpoint: s.MaxTcpConnectionsPerEndpoint(),
		PortMode:                  s.PortMode(),
	}
}

// Connections returns the number of connections to open per endpoint
func (c *ClientConfig) Connections() int {
	n := max(1, c.ConnectionsPerEndpoint)
	if c.MaxConnectionsPerEndpoint > 0 {
		n = min(n, c.MaxConnectionsPerEndpoint)
	}
	return n
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-26s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Request Timeout", c.RequestTimeout.String())
	addField("Dial Timeout", c.DialTimeout.String())
	addField("Idle Timeout", c.IdleTimeout.String())
	addField("Connections Per Endpoint", strconv.Itoa(c.Connections()))
	addField("Requests Per Connection", strconv.Itoa(c.MaxRequestsPerConnection))
	addField("Port Mode", c.PortMode.String())

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
