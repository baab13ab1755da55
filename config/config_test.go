package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vessel.services/vessel/env"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.Equal(t, "vessel", c.Name)
	require.Equal(t, env.DefaultReductions, c.Reductions)
	require.NoError(t, c.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vessel.yaml")
	data := []byte(`
name: production
workers: 8
mailbox_size: 1024
reductions: 32
max_processes: 10000
trace: true
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "production", c.Name)
	require.Equal(t, 8, c.Workers)
	require.Equal(t, int64(1024), c.MailboxSize)
	require.Equal(t, 32, c.Reductions)
	require.Equal(t, int64(10000), c.MaxProcesses)
	require.True(t, c.Trace)

	o := c.Options()
	require.Equal(t, 8, o.Workers)
	require.Equal(t, int64(1024), o.MailboxSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vessel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [nope"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vessel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: from-file\nworkers: 2\n"), 0o644))

	t.Setenv("VESSEL_NAME", "from-env")
	t.Setenv("VESSEL_WORKERS", "16")
	t.Setenv("VESSEL_TRACE", "1")

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", c.Name)
	require.Equal(t, 16, c.Workers)
	require.True(t, c.Trace)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Workers = -1
	require.Error(t, c.Validate())

	c = Default()
	c.Name = ""
	require.Error(t, c.Validate())

	c = Default()
	c.MailboxSize = -1
	require.Error(t, c.Validate())
}
