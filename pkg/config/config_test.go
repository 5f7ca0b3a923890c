package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "attachd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9999"
default_placement:
  mode: double
  secondaries: 2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.ListenAddr)
	require.Equal(t, "double", cfg.DefaultPlacement.Mode)

	policy, err := cfg.DefaultPlacement.ToPolicy()
	require.NoError(t, err)
	require.Equal(t, 2, policy.WantedSecondaries())
}

func TestValidateRejectsUnknownPlacementMode(t *testing.T) {
	cfg := Default()
	cfg.DefaultPlacement.Mode = "triple"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyListenAddr(t *testing.T) {
	cfg := Default()
	cfg.ListenAddr = ""
	require.Error(t, cfg.Validate())
}
