//go:build !unix

package zenohd

import "syscall"

func sysProcAttr() *syscall.SysProcAttr { return nil }
