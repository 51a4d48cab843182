package main

import "github.com/hostsentry-project/hostsentry/internal/engine"

// platformOptions returns the OS-specific event sources. The portable
// build carries none; the engine then runs on whatever a platform
// collector feeds it plus the detection pipeline's own state. Windows
// builds replace this with the event log reader, the device
// notification listener and the WMI process watcher.
func platformOptions() engine.Options {
	return engine.Options{}
}
