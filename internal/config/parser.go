package config

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/logger"
	"github.com/vaultos/vaultwm/internal/rules"
)

// Parse reads key=value configuration text on top of the defaults. Lines
// whose first ':' comes before their first '=' are window rules and are
// returned in the rule table. Bad lines are logged and skipped.
func Parse(data []byte) (*Config, *rules.Table) {
	cfg := Defaults()
	table := rules.NewTable()
	log := logger.WithComponent("config")

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, MaxFileSize), MaxFileSize+1)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		if len(raw) >= MaxLineLength {
			log.Warn().Int("line", lineNo).Int("length", len(raw)).Msg("Skipping overlong line")
			continue
		}
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if isRuleLine(line) {
			r, err := rules.ParseLine(line)
			if err != nil {
				log.Warn().Err(err).Int("line", lineNo).Msg("Skipping rule")
				continue
			}
			if err := table.Add(r); err != nil {
				log.Warn().Err(err).Int("line", lineNo).Msg("Skipping rule")
			}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			log.Warn().Int("line", lineNo).Str("text", line).Msg("Skipping line without '='")
			continue
		}
		if err := cfg.Set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			log.Warn().Err(err).Int("line", lineNo).Msg("Ignoring config value")
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn().Err(err).Msg("Config scan stopped early")
	}
	return cfg, table
}

func isRuleLine(line string) bool {
	colon := strings.IndexByte(line, ':')
	eq := strings.IndexByte(line, '=')
	return colon >= 0 && (eq < 0 || colon < eq)
}

// Set applies one key=value pair. A value that does not parse leaves the
// previous setting in place.
func (c *Config) Set(key, value string) error {
	switch key {
	case "border_width":
		return setInt(&c.BorderWidth, key, value, 0)
	case "border_color_focused":
		return setColor(&c.BorderColorFocused, key, value)
	case "border_color_unfocused":
		return setColor(&c.BorderColorUnfocused, key, value)
	case "border_color_urgent":
		return setColor(&c.BorderColorUrgent, key, value)
	case "gap_size":
		return setInt(&c.GapSize, key, value, 0)
	case "default_layout":
		kind, err := layout.ParseKind(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		c.DefaultLayout = kind
	case "mod_key":
		switch value {
		case "mod1", "mod4":
			c.ModKey = value
		default:
			return fmt.Errorf("%s: want mod1 or mod4, got %q", key, value)
		}
	case "status_bar_enabled":
		return setBool(&c.StatusBar.Enabled, key, value)
	case "status_bar_height":
		return setInt(&c.StatusBar.Height, key, value, 0)
	case "status_bar_update_interval":
		return setInt(&c.StatusBar.UpdateInterval, key, value, 1)
	case "status_font":
		c.StatusBar.Font = value
	case "cpu_interval":
		return setInt(&c.StatusBar.CPUInterval, key, value, 1)
	case "mem_interval":
		return setInt(&c.StatusBar.MemInterval, key, value, 1)
	case "net_interval":
		return setInt(&c.StatusBar.NetInterval, key, value, 1)
	case "terminal_cmd":
		c.TerminalCmd = value
	case "terminal_fallback":
		c.TerminalFallback = value
	case "launcher_cmd":
		c.LauncherCmd = value
	case "launcher_fallback":
		c.LauncherFallback = value
	case "rules_file":
		c.RulesFile = value
	case "ipc_path":
		if value == "" {
			return fmt.Errorf("%s: empty path", key)
		}
		c.IPCPath = value
	case "log_level":
		c.LogLevel = value
	case "backend":
		c.Backend = value
	case "plugins":
		c.Plugins = splitList(value)
	case "notifications":
		return setBool(&c.Notifications, key, value)
	case "status_http_addr":
		c.StatusHTTPAddr = value
	default:
		if n, ok := strings.CutPrefix(key, "workspace_"); ok {
			i, err := strconv.Atoi(n)
			if err != nil || i < 1 || i > WorkspaceCount {
				return fmt.Errorf("%w: %s", ErrUnknownKey, key)
			}
			if value != "" {
				c.WorkspaceNames[i-1] = value
			}
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

func setInt(dst *int, key, value string, min int) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: invalid number %q", key, value)
	}
	if v < min {
		return fmt.Errorf("%s: %d is below %d", key, v, min)
	}
	*dst = v
	return nil
}

func setBool(dst *bool, key, value string) error {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		return fmt.Errorf("%s: invalid boolean %q", key, value)
	}
	return nil
}

func setColor(dst *Color, key, value string) error {
	c, err := ParseColor(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = c
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
