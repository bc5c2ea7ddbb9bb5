package models

import "time"

// Team is one entry of the team roster read from spec/teams.yaml.
type Team struct {
	ID    string `yaml:"id" mapstructure:"id"`
	Name  string `yaml:"name,omitempty" mapstructure:"name"`
	Focus string `yaml:"focus,omitempty" mapstructure:"focus"`
}

// LogConfig selects the zap logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // console or json
}

// AlertConfig configures when queue alerts fire.
type AlertConfig struct {
	InputRequiredHours int `yaml:"input_required_hours" mapstructure:"input_required_hours"`
	MaxQueueSize       int `yaml:"max_queue_size" mapstructure:"max_queue_size"`
}

// Config holds tool settings read from .agentkit.yaml via Viper.
type Config struct {
	StateDir         string        `yaml:"state_dir" mapstructure:"state_dir"`
	AgentkitRoot     string        `yaml:"agentkit_root" mapstructure:"agentkit_root"`
	LockStaleAfter   time.Duration `yaml:"lock_stale_after" mapstructure:"lock_stale_after"`
	ListWorkers      int           `yaml:"list_workers" mapstructure:"list_workers"`
	IDRetryLimit     int           `yaml:"id_retry_limit" mapstructure:"id_retry_limit"`
	HandoffDelegator string        `yaml:"handoff_delegator" mapstructure:"handoff_delegator"`
	Log              LogConfig     `yaml:"log" mapstructure:"log"`
	Alerts           AlertConfig   `yaml:"alerts" mapstructure:"alerts"`
}
