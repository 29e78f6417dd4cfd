package base

import (
	"github.com/ValentinKolb/dAudit/lib/settings"
	"syscall"
)

// ControlFunc is the socket control hook of net.Dialer and net.ListenConfig
type ControlFunc func(network, address string, c syscall.RawConn) error

// reuseAddrControl sets SO_REUSEADDR before the socket is bound
func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = setReuseAddr(fd)
	}); err != nil {
		return err
	}
	return sockErr
}

// DialControl returns the socket control for outgoing connections in the given port mode.
// ReuseUnicastPort lets local ports be reused right after a connection closes, PrivatePortPool
// leaves port selection to the operating system.
func DialControl(mode settings.PortReuseMode) ControlFunc {
	if mode == settings.ReuseUnicastPort {
		return reuseAddrControl
	}
	return nil
}

// ListenControl returns the socket control for listeners
func ListenControl(reuseAddr bool) ControlFunc {
	if reuseAddr {
		return reuseAddrControl
	}
	return nil
}
