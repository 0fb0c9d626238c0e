//go:build windows

package osutils

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// IsAdmin checks if the current process has administrative privileges
func IsAdmin() bool {
	var token windows.Token
	h, _ := windows.GetCurrentProcess()
	if err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token); err != nil {
		return false
	}
	defer token.Close()

	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := token.IsMember(sid)
	return err == nil && member
}

// EnsureFirewallRule makes sure an inbound TCP rule for the viewer port
// exists, elevating through UAC when the process is not admin.
func EnsureFirewallRule(port int) error {
	out, err := exec.Command("netsh", "advfirewall", "firewall", "show", "rule", "name="+RuleName).CombinedOutput()
	if err == nil && strings.Contains(string(out), RuleName) {
		if strings.Contains(string(out), strconv.Itoa(port)) && strings.Contains(string(out), "Allow") {
			log.Debugf("Firewall: Rule %q already allows port %d", RuleName, port)
			return nil
		}
		log.Infof("Firewall: Rule %q does not match port %d, replacing", RuleName, port)
	} else {
		log.Infof("Firewall: Creating rule %q for port %d", RuleName, port)
	}

	ps := fmt.Sprintf(
		"Remove-NetFirewallRule -DisplayName '%s' -ErrorAction SilentlyContinue; New-NetFirewallRule -DisplayName '%s' -Direction Inbound -LocalPort %d -Protocol TCP -Action Allow -Profile Private,Domain",
		RuleName, RuleName, port,
	)

	if IsAdmin() {
		if out, err := exec.Command("powershell", "-NoProfile", "-Command", ps).CombinedOutput(); err != nil {
			return errors.Wrapf(err, "create firewall rule (output: %s)", strings.TrimSpace(string(out)))
		}
		return nil
	}

	verb, _ := syscall.UTF16PtrFromString("runas")
	exe, _ := syscall.UTF16PtrFromString("powershell.exe")
	args, _ := syscall.UTF16PtrFromString(fmt.Sprintf("-NoProfile -WindowStyle Hidden -Command \"%s\"", ps))
	if err := windows.ShellExecute(0, verb, exe, args, nil, windows.SW_HIDE); err != nil {
		return errors.Wrap(err, "launch elevated powershell")
	}
	log.Info("Firewall: UAC prompt requested for the viewer port rule")
	return nil
}
