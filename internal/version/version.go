// Package version carries build identity shared by workers and the
// orchestrator.
package version

const (
	AppName = "soundfleet"
	Version = "0.3.1"
)
