package core

import "pkt.systems/pslog"

// StateDeps captures optional dependencies for the session state.
type StateDeps struct {
	Sink   EventSink
	Logger pslog.Logger
}
