//go:build windows

package launcher

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// sysProcAttr keeps the engine child from opening a console window.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}
