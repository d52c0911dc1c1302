package zenohd

import "syscall"

// sysProcAttr puts zenohd in its own process group, out of reach of a
// terminal interrupt, and has the kernel stop it if this process dies.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGTERM}
}
