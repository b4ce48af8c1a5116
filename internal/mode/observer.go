package mode

// Observer receives the four notifications a Machine publishes. Each
// signal has its own method so subscribers never have to decode a
// generic event.
type Observer interface {
	// ModeChanged fires on a successful switch, on initialization, on a
	// memory bank status change and when the current mode's rules reload.
	ModeChanged(state State)
	// UMBTriggered fires when UMB is activated.
	UMBTriggered(state State)
	// UMBCompleted fires when UMB is deactivated.
	UMBCompleted(state State)
	// ModeTriggersDetected fires when a trigger check finds candidate modes.
	ModeTriggersDetected(targets []string)
}

// ObserverFuncs adapts a set of optional callbacks to the Observer
// interface. Nil fields are skipped.
type ObserverFuncs struct {
	OnModeChanged          func(State)
	OnUMBTriggered         func(State)
	OnUMBCompleted         func(State)
	OnModeTriggersDetected func([]string)
}

var _ Observer = ObserverFuncs{}

func (o ObserverFuncs) ModeChanged(s State) {
	if o.OnModeChanged != nil {
		o.OnModeChanged(s)
	}
}

func (o ObserverFuncs) UMBTriggered(s State) {
	if o.OnUMBTriggered != nil {
		o.OnUMBTriggered(s)
	}
}

func (o ObserverFuncs) UMBCompleted(s State) {
	if o.OnUMBCompleted != nil {
		o.OnUMBCompleted(s)
	}
}

func (o ObserverFuncs) ModeTriggersDetected(targets []string) {
	if o.OnModeTriggersDetected != nil {
		o.OnModeTriggersDetected(targets)
	}
}
