//go:build unix && !linux

package zenohd

import "syscall"

// sysProcAttr puts zenohd in its own process group, out of reach of a
// terminal interrupt.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
