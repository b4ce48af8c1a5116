// Package mode owns the assistant's current mode, the transient UMB
// override and the memory bank status flag.
//
// Transitions are validated against the loaded rule set and reported to
// subscribers through the Observer interface. Failed transitions return
// false and leave the state untouched.
package mode

import (
	"sync"

	"go.uber.org/zap"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/rules"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/trigger"
)

// Machine is the mode state machine. It is safe for concurrent use.
type Machine struct {
	src    RuleSource
	logger *zap.Logger

	mu        sync.RWMutex
	current   string
	umbActive bool
	status    Status

	obsMu     sync.Mutex
	observers []observerEntry
	nextID    int

	detach func()
}

type observerEntry struct {
	id int
	o  Observer
}

// New creates a machine in DefaultMode with an INACTIVE memory bank. Call
// Initialize once the rule source has loaded.
func New(src RuleSource, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		src:     src,
		logger:  logger,
		current: DefaultMode,
		status:  StatusInactive,
	}
	m.detach = src.Subscribe(rules.ListenerFunc(m.ruleChanged))
	return m
}

// Initialize selects the starting mode: initial when it has loaded rules,
// otherwise the first available mode, otherwise DefaultMode. It returns
// the selected mode and publishes ModeChanged.
func (m *Machine) Initialize(initial string) string {
	m.mu.Lock()
	switch {
	case initial != "" && m.src.HasMode(initial):
		m.current = initial
	default:
		if initial != "" {
			m.logger.Warn("initial mode has no rules, falling back", zap.String("mode", initial))
		}
		if available := m.src.Modes(); len(available) > 0 {
			m.current = available[0]
		}
	}
	state := m.stateLocked()
	m.mu.Unlock()

	m.logger.Info("mode initialized", zap.String("mode", state.Name))
	m.publish(func(o Observer) { o.ModeChanged(state) })
	return state.Name
}

// --- Queries ---

// Current returns a snapshot of the machine.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

// CurrentMode returns the current mode name.
func (m *Machine) CurrentMode() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsUMBActive reports whether the UMB override is active.
func (m *Machine) IsUMBActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.umbActive
}

// MemoryBankStatus returns the last status reported by the storage layer.
func (m *Machine) MemoryBankStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// StatusPrefix returns "[MEMORY BANK: <status>]" for the current status.
func (m *Machine) StatusPrefix() string {
	return m.MemoryBankStatus().Prefix()
}

// AvailableModes returns the modes that can be switched to.
func (m *Machine) AvailableModes() []string {
	return m.src.Modes()
}

func (m *Machine) stateLocked() State {
	def, _ := m.src.Rules(m.current)
	return State{
		Name:             m.current,
		Rules:            def,
		UMBActive:        m.umbActive,
		MemoryBankStatus: m.status,
	}
}

// --- Transitions ---

// SwitchMode makes target the current mode if it has loaded rules.
// The UMB flag is left as is.
func (m *Machine) SwitchMode(target string) bool {
	if !m.src.HasMode(target) {
		m.logger.Debug("switch rejected, no rules for mode", zap.String("mode", target))
		return false
	}

	m.mu.Lock()
	from := m.current
	m.current = target
	state := m.stateLocked()
	m.mu.Unlock()

	m.logger.Info("mode switched", zap.String("from", from), zap.String("to", target))
	m.publish(func(o Observer) { o.ModeChanged(state) })
	return true
}

// ActivateUMB turns the UMB override on. It returns false when the
// current mode has no UMB block.
func (m *Machine) ActivateUMB() bool {
	m.mu.Lock()
	def, _ := m.src.Rules(m.current)
	if !def.HasUMB() {
		m.mu.Unlock()
		return false
	}
	m.umbActive = true
	state := m.stateLocked()
	m.mu.Unlock()

	m.logger.Info("UMB activated", zap.String("mode", state.Name))
	m.publish(func(o Observer) { o.UMBTriggered(state) })
	return true
}

// DeactivateUMB turns the UMB override off. It always publishes
// UMBCompleted, even when UMB was not active.
func (m *Machine) DeactivateUMB() {
	m.mu.Lock()
	m.umbActive = false
	state := m.stateLocked()
	m.mu.Unlock()

	m.logger.Info("UMB deactivated", zap.String("mode", state.Name))
	m.publish(func(o Observer) { o.UMBCompleted(state) })
}

// SetMemoryBankStatus records the status reported by the storage layer
// and publishes ModeChanged.
func (m *Machine) SetMemoryBankStatus(status Status) {
	m.mu.Lock()
	m.status = status
	state := m.stateLocked()
	m.mu.Unlock()

	m.logger.Debug("memory bank status set", zap.String("status", string(status)))
	m.publish(func(o Observer) { o.ModeChanged(state) })
}

// --- Trigger checks ---

// CheckUMBTrigger reports whether text matches the current mode's UMB
// trigger pattern. Modes without a UMB block never match.
func (m *Machine) CheckUMBTrigger(text string) bool {
	def, ok := m.src.Rules(m.CurrentMode())
	if !ok || !def.HasUMB() {
		return false
	}

	matched, err := trigger.MatchUMB(def.Instructions.UMB.Trigger, text)
	if err != nil {
		m.logger.Warn("invalid UMB trigger", zap.String("mode", def.Mode), zap.Error(err))
		return false
	}
	return matched
}

// CheckModeTriggers returns the modes whose trigger conditions appear in
// text, in the order the current mode declares them. A non-empty result
// publishes ModeTriggersDetected; the current mode is not changed.
func (m *Machine) CheckModeTriggers(text string) []string {
	def, ok := m.src.Rules(m.CurrentMode())
	if !ok {
		return nil
	}

	targets := trigger.MatchModeTriggers(def.ModeTriggers.TriggerRules(), text, m.src.HasMode)
	if len(targets) > 0 {
		m.logger.Debug("mode triggers detected", zap.Strings("targets", targets))
		detected := append([]string(nil), targets...)
		m.publish(func(o Observer) { o.ModeTriggersDetected(detected) })
	}
	return targets
}

// ruleChanged republishes the state when the current mode's rules reload.
// A reload that drops the UMB block also ends an active UMB session.
func (m *Machine) ruleChanged(mode string, def *rules.RuleDefinition) {
	m.mu.Lock()
	if mode != m.current {
		m.mu.Unlock()
		return
	}
	endedUMB := m.umbActive && !def.HasUMB()
	if endedUMB {
		m.umbActive = false
	}
	state := m.stateLocked()
	m.mu.Unlock()

	if endedUMB {
		m.logger.Warn("UMB block removed from current mode, ending UMB", zap.String("mode", mode))
		m.publish(func(o Observer) { o.UMBCompleted(state) })
	}
	m.publish(func(o Observer) { o.ModeChanged(state) })
}

// --- Observers ---

// Subscribe registers an observer and returns a function that removes it.
func (m *Machine) Subscribe(o Observer) func() {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()

	id := m.nextID
	m.nextID++
	m.observers = append(m.observers, observerEntry{id: id, o: o})

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		for i, e := range m.observers {
			if e.id == id {
				m.observers = append(m.observers[:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

// publish delivers a notification to every observer in subscription
// order. It must be called without m.mu held.
func (m *Machine) publish(fn func(Observer)) {
	m.obsMu.Lock()
	obs := make([]Observer, 0, len(m.observers))
	for _, e := range m.observers {
		obs = append(obs, e.o)
	}
	m.obsMu.Unlock()

	for _, o := range obs {
		fn(o)
	}
}

// Close detaches every observer and stops listening for rule changes.
func (m *Machine) Close() {
	if m.detach != nil {
		m.detach()
	}
	m.obsMu.Lock()
	m.observers = nil
	m.obsMu.Unlock()
}
