package common

import (
	"fmt"
	"sort"

	coreerrors "ibco/core/errors"
)

// ErrModulePaused is returned by mutating operations while their module is
// paused. The wrapped message names the module.
var ErrModulePaused = coreerrors.New(coreerrors.KindAlreadyInState, "module paused")

// PauseView answers whether a module's mutating operations are suspended.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when module is paused. A nil view never
// pauses.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}

// Pauses is a static PauseView keyed by module name.
type Pauses map[string]bool

// IsPaused implements PauseView.
func (p Pauses) IsPaused(module string) bool { return p[module] }

// Modules returns the paused module names in order.
func (p Pauses) Modules() []string {
	out := make([]string, 0, len(p))
	for module, paused := range p {
		if paused {
			out = append(out, module)
		}
	}
	sort.Strings(out)
	return out
}
