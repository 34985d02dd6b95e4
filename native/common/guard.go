package common

import (
	"errors"
	"sync"
)

var (
	ErrModulePaused   = errors.New("module paused")
	ErrNotPaused      = errors.New("module not paused")
	ErrDisasterLocked = errors.New("module locked in disaster mode")
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Switchboard is the default PauseView implementation. A module may be
// paused and unpaused freely until it enters disaster mode; disaster mode is
// only reachable while paused and is irreversible, so a disaster-locked
// module can never resume normal operation.
type Switchboard struct {
	mu       sync.RWMutex
	paused   map[string]bool
	disaster map[string]bool
}

// NewSwitchboard creates an all-running switchboard.
func NewSwitchboard() *Switchboard {
	return &Switchboard{
		paused:   make(map[string]bool),
		disaster: make(map[string]bool),
	}
}

// IsPaused implements PauseView.
func (s *Switchboard) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module] || s.disaster[module]
}

// Pause halts the module.
func (s *Switchboard) Pause(module string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused[module] = true
}

// Unpause resumes a paused module. It fails once the module has entered
// disaster mode.
func (s *Switchboard) Unpause(module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disaster[module] {
		return ErrDisasterLocked
	}
	delete(s.paused, module)
	return nil
}

// EnterDisaster irreversibly locks the module for manual fund recovery. It
// is only legal while the module is paused.
func (s *Switchboard) EnterDisaster(module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disaster[module] {
		return nil
	}
	if !s.paused[module] {
		return ErrNotPaused
	}
	s.disaster[module] = true
	return nil
}

// InDisaster reports whether the module is disaster-locked.
func (s *Switchboard) InDisaster(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disaster[module]
}
