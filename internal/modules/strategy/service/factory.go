package service

import (
	"aster_bot/internal/modules/config"
)

const (
	HighFrequency   = "high_frequency"
	MediumFrequency = "medium_frequency"
)

// Engines — движки по включённым частотным режимам.
type Engines map[string]*Engine

func NewEngines(cfg *config.Config) Engines {
	out := Engines{}
	add := func(name string, c config.Cadence) {
		if !c.Enabled {
			return
		}
		out[name] = NewEngine(name, Params{
			SMAPeriods:           c.MAPeriods.SMA(),
			EMAPeriods:           c.MAPeriods.EMA(),
			ConvergenceThreshold: c.ConvergenceThresholdPercent,
			ConfirmationMinutes:  c.BreakoutConfirmationMinutes,
		}, nil)
	}
	add(HighFrequency, cfg.Strategies.HighFrequency)
	add(MediumFrequency, cfg.Strategies.MediumFrequency)
	return out
}
