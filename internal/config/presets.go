package config

import (
	"sort"

	"github.com/san-kum/msibi/internal/ibi"
)

// Presets are named engine settings.
var Presets = map[string]EngineConfig{
	"nvt": {
		NSteps: 1000000, Integrator: "nvt", Dt: 0.001, OutputPeriod: 10000, TableWidth: 1000,
		IntegratorKwargs: map[string]any{"tau": 0.1},
	},
	"langevin": {
		NSteps: 1000000, Integrator: "langevin", Dt: 0.001, OutputPeriod: 10000, TableWidth: 1000,
		IntegratorKwargs: map[string]any{"seed": 24},
	},
	"quick": {
		NSteps: 50000, Integrator: "nvt", Dt: 0.001, OutputPeriod: 5000, TableWidth: 500,
		IntegratorKwargs: map[string]any{"tau": 0.1},
	},
}

func GetPreset(name string) *EngineConfig {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	kwargs := make(map[string]any, len(p.IntegratorKwargs))
	for k, v := range p.IntegratorKwargs {
		kwargs[k] = v
	}
	p.IntegratorKwargs = kwargs
	return &p
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyPreset replaces the integration settings of the engine with a
// preset's. The command and parallelism are kept.
func (c *Config) ApplyPreset(name string) error {
	p := GetPreset(name)
	if p == nil {
		return ibi.Configf("unknown engine preset %q (available: %v)", name, ListPresets())
	}
	c.Engine.Preset = name
	c.Engine.NSteps = p.NSteps
	c.Engine.Integrator = p.Integrator
	c.Engine.IntegratorKwargs = p.IntegratorKwargs
	c.Engine.Dt = p.Dt
	c.Engine.OutputPeriod = p.OutputPeriod
	c.Engine.TableWidth = p.TableWidth
	return nil
}
