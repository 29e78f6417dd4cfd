package settings

import (
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"strings"
)

var log = logger.GetLogger("settings")

// --------------------------------------------------------------------------
// Port Reuse Mode
// --------------------------------------------------------------------------

// PortReuseMode controls how client sockets obtain their local port
type PortReuseMode int

const (
	// ReuseUnicastPort lets the operating system reuse local ports (SO_REUSEADDR)
	ReuseUnicastPort PortReuseMode = iota
	// PrivatePortPool gives every connection its own ephemeral port
	PrivatePortPool
)

func (m PortReuseMode) String() string {
	switch m {
	case ReuseUnicastPort:
		return "ReuseUnicastPort"
	case PrivatePortPool:
		return "PrivatePortPool"
	default:
		return "Unknown"
	}
}

// valid reports whether m is a member of the enumeration
func (m PortReuseMode) valid() bool {
	return m == ReuseUnicastPort || m == PrivatePortPool
}

// --------------------------------------------------------------------------
// Throttle Settings
// --------------------------------------------------------------------------

// ThrottleSettings holds the retry/backoff parameters and the connection limits of a client.
// Every setter validates its input: values outside the documented range are logged and
// dropped, the previous value is kept. A ThrottleSettings value can therefore never be invalid.
//
// The zero value is not useful, use New() to get the defaults.
type ThrottleSettings struct {
	exponentialRetryInMilliseconds       int
	maximumExponentialRetries            uint8
	randomizedMinThresholdInMilliseconds int
	randomizedMaxThresholdInMilliseconds int
	requestTimeoutInSeconds              int
	maxIdleTimeoutMinutes                int
	maxRequestsPerTcpConnection          int
	openTcpConnectionTimeoutSec          int
	maxTcpConnectionsPerEndpoint         int
	portMode                             PortReuseMode
}

// New returns the default settings
func New() ThrottleSettings {
	s := ThrottleSettings{}
	s.SetExponentialRetryInMilliseconds(2000) // base of base^attempt
	s.SetMaximumExponentialRetries(5)
	s.SetRandomizedMinThresholdInMilliseconds(250)  // min variance added to a retry (+/-)
	s.SetRandomizedMaxThresholdInMilliseconds(1250) // max variance added to a retry (+/-)
	s.SetRequestTimeoutInSeconds(300)
	s.SetMaxIdleTimeoutMinutes(10)
	// Fewer than 4 requests per connection leads to a large number of connections,
	// more than 50-100 to head of line blocking, high latency and timeouts.
	s.SetMaxRequestsPerTcpConnection(30)
	s.SetOpenTcpConnectionTimeoutSec(5)
	s.SetMaxTcpConnectionsPerEndpoint(65535)
	s.SetPortMode(ReuseUnicastPort)
	return s
}

// --------------------------------------------------------------------------
// Getters
// --------------------------------------------------------------------------

// ExponentialRetryInMilliseconds is the base used to exponentially back off between retries
func (s ThrottleSettings) ExponentialRetryInMilliseconds() int {
	return s.exponentialRetryInMilliseconds
}

// MaximumExponentialRetries is how many times a failed request is retried
func (s ThrottleSettings) MaximumExponentialRetries() uint8 { return s.maximumExponentialRetries }

// RandomizedMinThresholdInMilliseconds is one bound of the +/- jitter added to a retry delay
func (s ThrottleSettings) RandomizedMinThresholdInMilliseconds() int {
	return s.randomizedMinThresholdInMilliseconds
}

// RandomizedMaxThresholdInMilliseconds is the other bound of the +/- jitter added to a retry delay
func (s ThrottleSettings) RandomizedMaxThresholdInMilliseconds() int {
	return s.randomizedMaxThresholdInMilliseconds
}

func (s ThrottleSettings) RequestTimeoutInSeconds() int     { return s.requestTimeoutInSeconds }
func (s ThrottleSettings) MaxIdleTimeoutMinutes() int       { return s.maxIdleTimeoutMinutes }
func (s ThrottleSettings) MaxRequestsPerTcpConnection() int { return s.maxRequestsPerTcpConnection }
func (s ThrottleSettings) OpenTcpConnectionTimeoutSec() int { return s.openTcpConnectionTimeoutSec }
func (s ThrottleSettings) MaxTcpConnectionsPerEndpoint() int {
	return s.maxTcpConnectionsPerEndpoint
}
func (s ThrottleSettings) PortMode() PortReuseMode { return s.portMode }

// --------------------------------------------------------------------------
// Validated Setters
// --------------------------------------------------------------------------

func (s *ThrottleSettings) SetExponentialRetryInMilliseconds(v int) {
	s.exponentialRetryInMilliseconds = v
}

func (s *ThrottleSettings) SetMaximumExponentialRetries(v uint8) {
	s.maximumExponentialRetries = v
}

func (s *ThrottleSettings) SetRandomizedMinThresholdInMilliseconds(v int) {
	if v > 0 {
		s.randomizedMinThresholdInMilliseconds = v
		return
	}
	rejected("RandomizedMinThresholdInMilliseconds", v, "must be > 0")
}

func (s *ThrottleSettings) SetRandomizedMaxThresholdInMilliseconds(v int) {
	if v > 0 {
		s.randomizedMaxThresholdInMilliseconds = v
		return
	}
	rejected("RandomizedMaxThresholdInMilliseconds", v, "must be > 0")
}

func (s *ThrottleSettings) SetRequestTimeoutInSeconds(v int) {
	if v > 0 {
		s.requestTimeoutInSeconds = v
		return
	}
	rejected("RequestTimeoutInSeconds", v, "must be > 0")
}

func (s *ThrottleSettings) SetMaxIdleTimeoutMinutes(v int) {
	if v >= 10 {
		s.maxIdleTimeoutMinutes = v
		return
	}
	rejected("MaxIdleTimeoutMinutes", v, "must be >= 10")
}

func (s *ThrottleSettings) SetMaxRequestsPerTcpConnection(v int) {
	if v >= 4 && v <= 100 {
		s.maxRequestsPerTcpConnection = v
		return
	}
	rejected("MaxRequestsPerTcpConnection", v, "must be in [4, 100]")
}

func (s *ThrottleSettings) SetOpenTcpConnectionTimeoutSec(v int) {
	if v > 0 {
		s.openTcpConnectionTimeoutSec = v
		return
	}
	rejected("OpenTcpConnectionTimeoutSec", v, "must be > 0")
}

func (s *ThrottleSettings) SetMaxTcpConnectionsPerEndpoint(v int) {
	if v >= 16 { // minimum recommended
		s.maxTcpConnectionsPerEndpoint = v
		return
	}
	rejected("MaxTcpConnectionsPerEndpoint", v, "must be >= 16")
}

func (s *ThrottleSettings) SetPortMode(v PortReuseMode) {
	if v.valid() {
		s.portMode = v
		return
	}
	rejected("PortMode", int(v), "unknown port reuse mode")
}

// rejected logs a dropped assignment
func rejected(field string, value int, reason string) {
	log.Warningf("Ignoring %s = %d: %s", field, value, reason)
}

// --------------------------------------------------------------------------
// Diagnostics
// --------------------------------------------------------------------------

// Equal reports whether both settings hold the same values
func (s ThrottleSettings) Equal(other ThrottleSettings) bool {
	return s == other
}

// String returns a formatted string representation of all settings
func (s ThrottleSettings) String() string {
	var sb strings.Builder

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-38s: %s\n", name, value))
	}

	sb.WriteString("\nTHROTTLE SETTINGS\n")
	addField("ExponentialRetryInMilliseconds", fmt.Sprintf("%d ms", s.exponentialRetryInMilliseconds))
	addField("MaximumExponentialRetries", fmt.Sprintf("%d", s.maximumExponentialRetries))
	addField("RandomizedMinThresholdInMilliseconds", fmt.Sprintf("%d ms", s.randomizedMinThresholdInMilliseconds))
	addField("RandomizedMaxThresholdInMilliseconds", fmt.Sprintf("%d ms", s.randomizedMaxThresholdInMilliseconds))
	addField("RequestTimeoutInSeconds", fmt.Sprintf("%d sec", s.requestTimeoutInSeconds))
	addField("MaxIdleTimeoutMinutes", fmt.Sprintf("%d min", s.maxIdleTimeoutMinutes))
	addField("MaxRequestsPerTcpConnection", fmt.Sprintf("%d", s.maxRequestsPerTcpConnection))
	addField("OpenTcpConnectionTimeoutSec", fmt.Sprintf("%d sec", s.openTcpConnectionTimeoutSec))
	addField("MaxTcpConnectionsPerEndpoint", fmt.Sprintf("%d", s.maxTcpConnectionsPerEndpoint))
	addField("PortReuseMode", s.portMode.String())

	return sb.String()
}
