//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

var (
	pauseSignal  os.Signal = syscall.SIGUSR1
	resumeSignal os.Signal = syscall.SIGUSR2

	sessionSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2}
)
