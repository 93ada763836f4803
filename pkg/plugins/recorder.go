package plugins

import "time"

// Recorder receives manager activity, e.g. to feed metrics.
type Recorder interface {
	PluginLoaded(pluginID string, duration time.Duration, err error)
	CommandExecuted(pluginID, command string, duration time.Duration, err error)
	EventDispatched(pluginID string, err error)
	WorkersActive(n int)
}

type nopRecorder struct{}

func (nopRecorder) PluginLoaded(string, time.Duration, error)            {}
func (nopRecorder) CommandExecuted(string, string, time.Duration, error) {}
func (nopRecorder) EventDispatched(string, error)                        {}
func (nopRecorder) WorkersActive(int)                                    {}
