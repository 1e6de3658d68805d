package config

import (
	"fmt"
	"reflect"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/lunarchive/lunarchive/internal/logger"
)

// Manager loads configuration from disk and publishes reload signals to
// subscribers when the file changes on disk.
type Manager struct {
	v       *viper.Viper
	log     logger.Interface
	current atomic.Pointer[Config]

	mu   sync.Mutex
	subs []chan struct{}
}

// NewManager creates a manager bound to the given config file path.
func NewManager(path string, log logger.Interface) *Manager {
	v := viper.New()
	v.SetConfigFile(path)
	return &Manager{v: v, log: log}
}

// Load reads, decodes, and validates the configuration file. The first
// successful call establishes the current configuration; later calls
// replace it atomically.
func (m *Manager) Load() (*Config, error) {
	if err := m.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToRegexpHook,
	)
	if err := m.v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	m.current.Store(&cfg)
	return &cfg, nil
}

// Current returns the most recently loaded configuration.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// Changes returns a channel that receives a signal after each
// successful reload.
func (m *Manager) Changes() <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Watch begins watching the config file for edits. A reload that fails
// to parse or validate is logged and the previous configuration stays
// active.
func (m *Manager) Watch() {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		m.log.Info("Config file changed, reloading", "file", e.Name)
		if _, err := m.Load(); err != nil {
			m.log.Error("Config reload failed, keeping previous config", "error", err)
			return
		}
		m.notify()
	})
	m.v.WatchConfig()
}

func (m *Manager) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// stringToRegexpHook compiles string values targeted at *regexp.Regexp
// fields during decode.
func stringToRegexpHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf((*regexp.Regexp)(nil)) {
		return data, nil
	}
	re, err := regexp.Compile(data.(string))
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", data.(string), err)
	}
	return re, nil
}
