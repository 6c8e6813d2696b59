package scopert

import (
	"sync"

	"github.com/pumped-fn/scopert/disposable"
)

// Preset is a label-keyed default for scope entry: a disposables bundle
// and/or baseline records contributed to every scope entered with that
// label, ranked below caller-supplied state and disposable output but
// above inherited ancestor state. Default state a caller doesn't want to repeat at every call site — the
// feature haiway/context/presets.py provides.
type Preset struct {
	Disposables func() *disposable.Bundle
	Records     []any
}

var presets sync.Map // string (label) -> Preset

// RegisterPreset installs the default preset used by scopes entered with
// the given label, whether or not they also pass explicit disposables or
// state (those take priority over the preset's records).
// Registering again under the same label replaces the previous preset.
func RegisterPreset(label string, preset Preset) {
	presets.Store(label, preset)
}

// PresetFor returns the registered preset for label, if any.
func PresetFor(label string) (Preset, bool) {
	v, ok := presets.Load(label)
	if !ok {
		return Preset{}, false
	}
	return v.(Preset), true
}

// ClearPresets removes every registered preset; primarily useful for test
// isolation between cases that register conflicting presets.
func ClearPresets() {
	presets.Range(func(k, _ any) bool {
		presets.Delete(k)
		return true
	})
}
