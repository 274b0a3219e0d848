package models

import (
	"context"
	"sync"
)

// InputMode represents the current input mode (vim-like)
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
	InputModeFilter
)

func (m InputMode) String() string {
	switch m {
	case InputModeInsert:
		return "INSERT"
	case InputModeFilter:
		return "FILTER"
	default:
		return "NORMAL"
	}
}

// WatchModel holds the shared state of the watch TUI: the device under
// observation, connection status and the input mode. Event delivery
// happens through the program's Send; this model never touches the
// hardware directly.
type WatchModel struct {
	device string

	mu        sync.RWMutex
	connected bool
	err       error
	ready     bool
	inputMode InputMode

	ctx    context.Context
	cancel context.CancelFunc
}

func NewWatchModel(device string) *WatchModel {
	ctx, cancel := context.WithCancel(context.Background())
	return &WatchModel{
		device: device,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (m *WatchModel) Device() string {
	return m.device
}

func (m *WatchModel) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *WatchModel) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *WatchModel) Error() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

func (m *WatchModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *WatchModel) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

func (m *WatchModel) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

func (m *WatchModel) InputMode() InputMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputMode
}

func (m *WatchModel) SetInputMode(mode InputMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputMode = mode
}

func (m *WatchModel) IsInInsertMode() bool {
	return m.InputMode() == InputModeInsert
}

func (m *WatchModel) IsInFilterMode() bool {
	return m.InputMode() == InputModeFilter
}

func (m *WatchModel) Context() context.Context {
	return m.ctx
}

func (m *WatchModel) Cancel() {
	if m.cancel != nil {
		m.cancel()
	}
}
