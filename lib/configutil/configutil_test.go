package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Home    string            `json:"home"`
	Timeout int               `json:"timeout"`
	Tags    map[string]string `json:"tags"`
}

func writeFile(t testing.TB, path, contents string) {
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "turtles.json5"), `{
		// comments are allowed
		home: "/srv/turtles",
		timeout: 30,
		tags: {a: "1"},
	}`)
	writeFile(t, filepath.Join(dir, "turtles.local.json5"), `{timeout: 5, tags: {b: "2"}}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "turtles.json5"))
	require.NoError(t, err)
	require.Equal(t, "/srv/turtles", cfg.Home)
	require.Equal(t, 5, cfg.Timeout)
	require.Equal(t, "1", cfg.Tags["a"])
	require.Equal(t, "2", cfg.Tags["b"])
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "turtles.json5"))
	require.True(t, os.IsNotExist(err))
}

func TestReadFirst(t *testing.T) {
	empty := t.TempDir()
	full := t.TempDir()
	writeFile(t, filepath.Join(full, "turtles.json5"), `{home: "found"}`)

	cfg, path, err := ReadFirst[testConfig]([]string{"", empty, full}, "turtles.json5")
	require.NoError(t, err)
	require.Equal(t, "found", cfg.Home)
	require.Equal(t, filepath.Join(full, "turtles.json5"), path)

	_, _, err = ReadFirst[testConfig]([]string{empty}, "turtles.json5")
	require.True(t, os.IsNotExist(err))
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, filepath.Join("a", "b", "turtles.local.json5"), LocalPath(filepath.Join("a", "b", "turtles.json5")))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	expanded, err := ExpandHome("~/loggingTurtle")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "loggingTurtle"), expanded)

	same, err := ExpandHome("/abs/path")
	require.NoError(t, err)
	require.Equal(t, "/abs/path", same)
}
