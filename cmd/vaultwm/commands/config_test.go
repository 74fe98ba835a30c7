package commands

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vaultos/vaultwm/internal/config"
	"github.com/vaultos/vaultwm/internal/rules"
)

func TestWriteConfigJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, config.Defaults(), "json"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, "tiling", got["default_layout"])
	require.Equal(t, "0x00FF41", got["border_color_focused"])
	require.Equal(t, "mod4", got["mod_key"])
}

func TestWriteConfigYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, config.Defaults(), "yaml"))

	var got struct {
		GapSize   int `yaml:"gap_size"`
		StatusBar struct {
			Height int `yaml:"height"`
		} `yaml:"status_bar"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, 5, got.GapSize)
	require.Equal(t, 30, got.StatusBar.Height)
}

func TestWriteConfigRejectsUnknownFormat(t *testing.T) {
	err := writeConfig(&bytes.Buffer{}, config.Defaults(), "toml")
	require.ErrorContains(t, err, "unsupported format")
}

func TestLookupKey(t *testing.T) {
	cfg := config.Defaults()

	v, err := lookupKey(cfg, "status_bar.height")
	require.NoError(t, err)
	require.EqualValues(t, 30, v)

	v, err = lookupKey(cfg, "terminal_cmd")
	require.NoError(t, err)
	require.Equal(t, "alacritty", v)

	_, err = lookupKey(cfg, "status_bar.nope")
	require.ErrorContains(t, err, "not found")
	_, err = lookupKey(cfg, "gap_size.inner")
	require.ErrorContains(t, err, "not found")
}

func TestWriteRules(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRules(&buf, rules.NewTable()))
	require.Equal(t, "No rules\n", buf.String())

	buf.Reset()
	table := rules.Load("Gimp:workspace=2\nFirefox:Navigator:tag=web\nbroken line\n")
	require.NoError(t, writeRules(&buf, table))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, []string{"PRIORITY", "CLASS", "INSTANCE", "KIND", "VALUE"}, strings.Fields(lines[0]))
	require.Equal(t, []string{"0", "Gimp", "*", "workspace", "2"}, strings.Fields(lines[1]))
	require.Equal(t, []string{"1", "Firefox", "Navigator", "tag", "web"}, strings.Fields(lines[2]))
}
