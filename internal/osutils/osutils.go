// Package osutils holds the host integration the viewer needs to be
// reachable from other machines.
package osutils

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "osutils")

// RuleName is the firewall rule created for the viewer port
const RuleName = "webkvm viewer"

// ListenPort splits a listen address and reports whether it is bound to
// loopback only.
func ListenPort(addr string) (port int, loopback bool, err error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, false, errors.Wrapf(err, "parse listen address %q", addr)
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return 0, false, errors.Wrapf(err, "parse listen port %q", portStr)
	}
	if host == "localhost" {
		return port, true, nil
	}
	ip := net.ParseIP(host)
	return port, ip != nil && ip.IsLoopback(), nil
}

// AllowViewer opens the viewer port in the host firewall when addr is
// reachable from the network.
func AllowViewer(addr string) error {
	port, loopback, err := ListenPort(addr)
	if err != nil {
		return err
	}
	if loopback || port == 0 {
		return nil
	}
	return EnsureFirewallRule(port)
}
