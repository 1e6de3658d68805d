package logger

// Config represents the logger configuration.
type Config struct {
	// Level is the minimum logging level.
	Level string `yaml:"level" json:"level" mapstructure:"level"`
	// Development enables development mode.
	Development bool `yaml:"development" json:"development" mapstructure:"development"`
	// Encoding sets the logger's encoding ("console" or "json").
	Encoding string `yaml:"encoding" json:"encoding" mapstructure:"encoding"`
}
