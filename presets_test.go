package scopert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterAndLookupPreset(t *testing.T) {
	defer ClearPresets()
	RegisterPreset("worker", Preset{Records: []any{"default-config"}})

	p, ok := PresetFor("worker")
	assert.True(t, ok)
	assert.Equal(t, []any{"default-config"}, p.Records)

	_, ok = PresetFor("unregistered")
	assert.False(t, ok)
}

func TestRegisterPresetReplaces(t *testing.T) {
	defer ClearPresets()
	RegisterPreset("worker", Preset{Records: []any{"v1"}})
	RegisterPreset("worker", Preset{Records: []any{"v2"}})

	p, ok := PresetFor("worker")
	assert.True(t, ok)
	assert.Equal(t, []any{"v2"}, p.Records)
}
