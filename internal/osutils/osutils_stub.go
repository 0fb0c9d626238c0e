//go:build !windows

package osutils

// IsAdmin is a stub for non-Windows platforms
func IsAdmin() bool {
	return false
}

// EnsureFirewallRule is a stub for non-Windows platforms
func EnsureFirewallRule(port int) error {
	log.Debugf("Firewall: Rule management for port %d is only supported on Windows", port)
	return nil
}
