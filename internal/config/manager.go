package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/vaultos/vaultwm/internal/logger"
	"github.com/vaultos/vaultwm/internal/rules"
)

// Manager handles configuration loading and reloading
type Manager struct {
	configPath string
	config     *Config
	rules      *rules.Table
	overrides  map[string]string
	mu         sync.RWMutex
}

// NewManager loads the configuration at configFile, or the default path
// when configFile is empty. A missing or unreadable file yields the
// defaults; only an unsafe path is an error.
func NewManager(configFile string) (*Manager, error) {
	if configFile == "" {
		configFile = DefaultPath()
	}
	path, err := ExpandPath(configFile)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		configPath: path,
		overrides:  make(map[string]string),
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, using defaults")
		} else {
			logger.WithComponent("config").Warn().
				Err(err).
				Str("path", m.configPath).
				Msg("Failed to read config, using defaults")
		}
		m.config, m.rules = Defaults(), rules.NewTable()
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Int("rules", m.rules.Len()).
		Msg("Config loaded")

	return m, nil
}

// ReadFile checks and reads a config file: regular files only, at most
// MaxFileSize bytes.
func ReadFile(path string) ([]byte, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegular, path)
	}
	if st.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, st.Size(), MaxFileSize)
	}
	return os.ReadFile(path)
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := ReadFile(m.configPath)
	if err != nil {
		return err
	}
	cfg, table := Parse(data)

	m.mu.Lock()
	m.applyOverridesLocked(cfg)
	m.config, m.rules = cfg, table
	m.mu.Unlock()
	return nil
}

// Reload re-reads the file. On failure the previous configuration stays
// active. A file that has disappeared reverts to the defaults.
func (m *Manager) Reload() error {
	err := m.load()
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		cfg := Defaults()
		m.mu.Lock()
		m.applyOverridesLocked(cfg)
		m.config, m.rules = cfg, rules.NewTable()
		m.mu.Unlock()
		return nil
	}
	return fmt.Errorf("failed to reload config: %w", err)
}

// Override sets a value that wins over the file, e.g. from a command-line
// flag or environment variable. It survives reloads.
func (m *Manager) Override(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.config.Set(key, value); err != nil {
		return err
	}
	m.overrides[key] = value
	return nil
}

func (m *Manager) applyOverridesLocked(cfg *Config) {
	for k, v := range m.overrides {
		if err := cfg.Set(k, v); err != nil {
			logger.WithComponent("config").Warn().Err(err).Str("key", k).Msg("Ignoring override")
		}
	}
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	return m.config.clone()
}

// Rules returns the rule lines found in the config file itself
func (m *Manager) Rules() *rules.Table {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t := rules.NewTable()
	_ = t.Merge(m.rules)
	return t
}

// RulesPath returns the expanded rules file path
func (m *Manager) RulesPath() (string, error) {
	return ExpandPath(m.Get().RulesFile)
}

// LoadRules builds the effective rule table: rules from the config file
// followed by the rules file, so the rules file wins ties.
func (m *Manager) LoadRules() (*rules.Table, error) {
	table := m.Rules()
	path, err := m.RulesPath()
	if err != nil {
		return table, err
	}
	fileRules, err := rules.LoadFile(path)
	if err != nil {
		return table, err
	}
	if err := table.Merge(fileRules); err != nil {
		logger.WithComponent("config").Warn().Err(err).Msg("Rule table full, dropping remaining rules")
	}
	return table, nil
}

// GetConfigPath returns the expanded configuration file path
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
