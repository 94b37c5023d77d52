// YAML config loader with CUE schema validation
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Thresholds holds the stability classification tunables. The defaults are
// inferred from observed failure traces, not from solver documentation, so
// every one of them is overridable via config file or CLI flag.
type Thresholds struct {
	// ExplosionThreshold is the velocity/angular-rate/Courant magnitude
	// beyond which the run counts as diverged.
	ExplosionThreshold float64 `yaml:"explosion_threshold"`
	// DeltaTFloor is the time-step size below which a step counts toward
	// the stall window.
	DeltaTFloor float64 `yaml:"delta_t_floor"`
	// StallWindow is the number of consecutive tiny steps that classifies
	// a stall.
	StallWindow int `yaml:"stall_window"`
	// StallProgressFraction of the target sim time under which time is
	// considered to not be advancing during a tiny-step run.
	StallProgressFraction float64 `yaml:"stall_progress_fraction"`
	// TargetSimTime is the simulated duration the run is expected to
	// reach. Zero disables the STABLE-on-target predicate.
	TargetSimTime float64 `yaml:"target_sim_time"`
}

// PhysicalLimits are the post-hoc physical plausibility checks. A breach is
// recorded as an issue in the report but does not by itself fail the run.
type PhysicalLimits struct {
	MaxCourant  float64 `yaml:"max_courant"`
	MinDeltaT   float64 `yaml:"min_delta_t"`
	MaxVelocity float64 `yaml:"max_velocity"`
}

// MonitorConfig holds the runtime behavior of the monitor itself.
// Durations are expressed in seconds to match the solver's time units.
type MonitorConfig struct {
	LogFile         string  `yaml:"log_file"`
	PollIntervalS   float64 `yaml:"poll_interval_s"`
	StatusIntervalS float64 `yaml:"status_interval_s"`
	SourceGraceS    float64 `yaml:"source_grace_s"`
	IdleGraceS      float64 `yaml:"idle_grace_s"`
	KillGraceS      float64 `yaml:"kill_grace_s"`
}

// Config is the root monitor configuration.
type Config struct {
	Thresholds Thresholds     `yaml:"thresholds"`
	Limits     PhysicalLimits `yaml:"limits"`
	Monitor    MonitorConfig  `yaml:"monitor"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Thresholds: Thresholds{
			ExplosionThreshold:    1e6,
			DeltaTFloor:           1e-8,
			StallWindow:           50,
			StallProgressFraction: 1e-3,
		},
		Limits: PhysicalLimits{
			MaxCourant:  1.0,
			MinDeltaT:   1e-4,
			MaxVelocity: 50.0,
		},
		Monitor: MonitorConfig{
			LogFile:         "log.interFoam",
			PollIntervalS:   0.5,
			StatusIntervalS: 2,
			SourceGraceS:    30,
			IdleGraceS:      60,
			KillGraceS:      10,
		},
	}
}

// Load reads a YAML config and validates it against a CUE schema. An empty
// path returns the defaults; an empty cueSchemaPath skips validation.
// Values missing from the file keep their defaults.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	cfg := Default()
	if configPath == "" {
		return cfg, nil
	}

	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// PollInterval is the follow-mode polling fallback interval.
func (m MonitorConfig) PollInterval() time.Duration { return seconds(m.PollIntervalS) }

// StatusInterval is the reporting/auto-exit ticker interval.
func (m MonitorConfig) StatusInterval() time.Duration { return seconds(m.StatusIntervalS) }

// SourceGrace is how long to wait for the log source to appear.
func (m MonitorConfig) SourceGrace() time.Duration { return seconds(m.SourceGraceS) }

// IdleGrace is how long follow mode tolerates a silent stream before
// classifying the run inconclusive.
func (m MonitorConfig) IdleGrace() time.Duration { return seconds(m.IdleGraceS) }

// KillGrace is the delay between SIGTERM and SIGKILL on auto-exit.
func (m MonitorConfig) KillGrace() time.Duration { return seconds(m.KillGraceS) }
