package common

import "errors"

// ErrModulePaused is returned by Guard when the named module is switched off.
var ErrModulePaused = errors.New("module paused")

// PauseView reports which exchange modules are administratively paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects an operation when its module is paused. A nil view or empty
// module name admits everything, so engines run unguarded until wired.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
