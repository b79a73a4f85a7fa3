// Package trading turns predictions into signals, dispatches them and runs
// the event monitor loop.
package trading

import (
	"strings"
	"sync"

	apperrors "macro-trader/internal/errors"
	"macro-trader/internal/models"
)

// ModeState holds the dispatch mode. Set is the only transition and affects
// signals generated afterwards.
type ModeState struct {
	mu   sync.RWMutex
	mode models.TradingMode
}

// NewModeState starts in initial, or SIGNAL_ONLY when initial is unknown.
func NewModeState(initial models.TradingMode) *ModeState {
	if !initial.Valid() {
		initial = models.ModeSignalOnly
	}
	return &ModeState{mode: initial}
}

// Get returns the current mode.
func (s *ModeState) Get() models.TradingMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Set switches mode and returns the previous one.
func (s *ModeState) Set(mode models.TradingMode) (models.TradingMode, error) {
	if !mode.Valid() {
		return "", apperrors.Wrapf(apperrors.ErrConfigInvalid, "unknown trading mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.mode
	s.mode = mode
	return prev, nil
}

// ParseMode accepts mode names case-insensitively, with "-" for "_".
func ParseMode(s string) (models.TradingMode, error) {
	m := models.TradingMode(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !m.Valid() {
		return "", apperrors.Wrapf(apperrors.ErrConfigInvalid, "unknown trading mode %q", s)
	}
	return m, nil
}
