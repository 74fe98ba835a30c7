package launch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitFallback(t *testing.T) {
	parts, err := Split("alacritty || xterm")
	require.NoError(t, err)
	require.Equal(t, []string{"alacritty", "xterm"}, parts)

	parts, err = Split("rofi -show drun")
	require.NoError(t, err)
	require.Equal(t, []string{"rofi -show drun"}, parts)
}

func TestValidateRejects(t *testing.T) {
	for _, cmd := range []string{
		"xterm `id`",
		"xterm $(id)",
		"xterm < /etc/passwd",
		"xterm > /tmp/out",
		"xterm | tee",
		"xterm; rm -rf ~",
		"xterm & sleep 1",
		"xterm 'quoted'",
		"",
		"   ",
		"alacritty || ",
		"alacritty || xterm `id`",
	} {
		t.Run(cmd, func(t *testing.T) {
			_, err := Build(cmd)
			require.ErrorIs(t, err, ErrUnsafeCommand)
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	for _, cmd := range []string{
		"alacritty",
		"rofi -show drun",
		"st -e ~/bin/top.sh",
		"firefox --new-window=https://example.org/a_b,c+d@e%20",
	} {
		require.NoError(t, Validate(cmd), cmd)
	}
}

func TestBuildDirect(t *testing.T) {
	cmd, err := Build("rofi  -show drun")
	require.NoError(t, err)
	require.Equal(t, []string{"rofi", "-show", "drun"}, cmd.Args)
	require.True(t, cmd.SysProcAttr.Setsid)
}

func TestBuildFallbackUsesShell(t *testing.T) {
	cmd, err := Build("alacritty||xterm -fa mono")
	require.NoError(t, err)
	require.Equal(t, Shell, cmd.Path)
	require.Equal(t, []string{Shell, "-c", "alacritty || xterm -fa mono"}, cmd.Args)
	require.True(t, cmd.SysProcAttr.Setsid)
}

func TestStart(t *testing.T) {
	require.NoError(t, Start("true"))
	require.NoError(t, Start("false || true"))
	require.Error(t, Start("vaultwm-no-such-binary-xyz"))
	require.ErrorIs(t, Start("true > /dev/null"), ErrUnsafeCommand)
}
