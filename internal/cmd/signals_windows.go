//go:build windows

package cmd

import "os"

var (
	pauseSignal  os.Signal
	resumeSignal os.Signal

	sessionSignals = []os.Signal{os.Interrupt}
)
