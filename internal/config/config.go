package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vaultos/vaultwm/internal/layout"
)

const (
	// MaxFileSize caps the configuration file size in bytes
	MaxFileSize = 8192
	// MaxLineLength caps a single line; longer lines are skipped
	MaxLineLength = 256
	// WorkspaceCount matches the number of workspaces
	WorkspaceCount = 9
)

var (
	// ErrUnsafePath is returned for paths containing ".."
	ErrUnsafePath = errors.New("unsafe config path")
	// ErrNotRegular is returned when the path is not a regular file
	ErrNotRegular = errors.New("config path is not a regular file")
	// ErrTooLarge is returned for files above MaxFileSize
	ErrTooLarge = errors.New("config file too large")
	// ErrUnknownKey is returned for keys the parser does not know
	ErrUnknownKey = errors.New("unknown config key")
)

// Color is a 24-bit RGB value
type Color uint32

// ParseColor accepts 0xRRGGBB, #RRGGBB or RRGGBB
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.TrimPrefix(s, "#")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil || v > 0xFFFFFF {
		return 0, fmt.Errorf("invalid color %q", s)
	}
	return Color(v), nil
}

func (c Color) String() string {
	return fmt.Sprintf("0x%06X", uint32(c))
}

// MarshalText implements encoding.TextMarshaler
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Color) UnmarshalText(b []byte) error {
	parsed, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Config represents the window manager configuration
type Config struct {
	BorderWidth          int         `json:"border_width" yaml:"border_width"`
	BorderColorFocused   Color       `json:"border_color_focused" yaml:"border_color_focused"`
	BorderColorUnfocused Color       `json:"border_color_unfocused" yaml:"border_color_unfocused"`
	BorderColorUrgent    Color       `json:"border_color_urgent" yaml:"border_color_urgent"`
	GapSize              int         `json:"gap_size" yaml:"gap_size"`
	DefaultLayout        layout.Kind `json:"default_layout" yaml:"default_layout"`
	WorkspaceNames       []string    `json:"workspace_names" yaml:"workspace_names"`
	ModKey               string      `json:"mod_key" yaml:"mod_key"`

	StatusBar StatusBarConfig `json:"status_bar" yaml:"status_bar"`

	TerminalCmd      string `json:"terminal_cmd" yaml:"terminal_cmd"`
	TerminalFallback string `json:"terminal_fallback" yaml:"terminal_fallback"`
	LauncherCmd      string `json:"launcher_cmd" yaml:"launcher_cmd"`
	LauncherFallback string `json:"launcher_fallback" yaml:"launcher_fallback"`

	RulesFile      string   `json:"rules_file" yaml:"rules_file"`
	IPCPath        string   `json:"ipc_path" yaml:"ipc_path"`
	LogLevel       string   `json:"log_level" yaml:"log_level"`
	Backend        string   `json:"backend" yaml:"backend"`
	Plugins        []string `json:"plugins" yaml:"plugins"`
	Notifications  bool     `json:"notifications" yaml:"notifications"`
	StatusHTTPAddr string   `json:"status_http_addr" yaml:"status_http_addr"`
}

// StatusBarConfig configures the status line and its sensors
type StatusBarConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Height         int    `json:"height" yaml:"height"`
	UpdateInterval int    `json:"update_interval" yaml:"update_interval"`
	Font           string `json:"font,omitempty" yaml:"font,omitempty"`
	CPUInterval    int    `json:"cpu_interval" yaml:"cpu_interval"`
	MemInterval    int    `json:"mem_interval" yaml:"mem_interval"`
	NetInterval    int    `json:"net_interval" yaml:"net_interval"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	names := make([]string, WorkspaceCount)
	for i := range names {
		names[i] = strconv.Itoa(i + 1)
	}
	return &Config{
		BorderWidth:          2,
		BorderColorFocused:   0x00FF41,
		BorderColorUnfocused: 0x003300,
		BorderColorUrgent:    0xFF0000,
		GapSize:              5,
		DefaultLayout:        layout.Tiling,
		WorkspaceNames:       names,
		ModKey:               "mod4",
		StatusBar: StatusBarConfig{
			Enabled:        true,
			Height:         30,
			UpdateInterval: 1,
			CPUInterval:    2,
			MemInterval:    5,
			NetInterval:    2,
		},
		TerminalCmd:      "alacritty",
		TerminalFallback: "xterm",
		LauncherCmd:      "dmenu_run",
		LauncherFallback: "rofi -show drun",
		RulesFile:        "~/.config/vaultwm/rules",
		IPCPath:          "/tmp/vaultwm-ipc",
		LogLevel:         "info",
		Backend:          "auto",
		Plugins:          []string{"clock"},
	}
}

// clone returns a deep copy
func (c *Config) clone() *Config {
	cp := *c
	cp.WorkspaceNames = append([]string(nil), c.WorkspaceNames...)
	cp.Plugins = append([]string(nil), c.Plugins...)
	return &cp
}

// TerminalCommand joins the terminal and its fallback
func (c *Config) TerminalCommand() string {
	return withFallback(c.TerminalCmd, c.TerminalFallback)
}

// LauncherCommand joins the launcher and its fallback
func (c *Config) LauncherCommand() string {
	return withFallback(c.LauncherCmd, c.LauncherFallback)
}

func withFallback(primary, fallback string) string {
	primary, fallback = strings.TrimSpace(primary), strings.TrimSpace(fallback)
	switch {
	case primary == "":
		return fallback
	case fallback == "":
		return primary
	}
	return primary + " || " + fallback
}

// ExpandPath expands a leading ~ and rejects paths containing ".."
func ExpandPath(path string) (string, error) {
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, path)
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path, nil
}

// DefaultPath returns $XDG_CONFIG_HOME/vaultwm/config, or the ~/.config
// equivalent
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "vaultwm", "config")
	}
	return "~/.config/vaultwm/config"
}
