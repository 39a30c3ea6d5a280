package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hbomb79/Tasaveer/internal/watch"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	return home
}

func TestLoadFromFile_Defaults(t *testing.T) {
	home := withHome(t)

	var config TasaveerConfig
	require.NoError(t, config.LoadFromFile(filepath.Join(home, "missing.yaml")))

	assert.Equal(t, filepath.Join(home, ".config", "tasaveer", "settings.json"), config.SettingsPath)
	assert.Equal(t, ".tasaveer_staging", config.Ingest.StagingDirName)
	assert.Equal(t, "%Y/%m", config.Ingest.DateFormat)
	assert.Equal(t, 4, config.Ingest.TaggingWorkers)
	assert.Equal(t, 100*time.Millisecond, config.Ingest.FlushInterval)
	assert.Equal(t, ReaderAuto, config.Scan.Reader)
	assert.Equal(t, "127.0.0.1:8080", config.RestConfig.HostAddr)
	assert.Equal(t, 30*time.Second, config.Watch.QuietPeriod)
	assert.Empty(t, config.Watch.Targets)
}

func TestLoadFromFile_FileAndEnvironment(t *testing.T) {
	home := withHome(t)
	t.Setenv("INGEST_TAGGING_WORKERS", "8")

	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
settings_path: ~/tasaveer/settings.json
archive_dir: ~/Pictures/Archive
scan:
  reader: exiftool
tools:
  paths:
    exiftool: ~/bin/exiftool
  bundle_dir: ~/tools
api:
  host_address: 0.0.0.0:9000
watch:
  quiet_period: 5s
  targets:
    - source: ~/Card
      destination: ~/Pictures/Archive
`), 0o644))

	var config TasaveerConfig
	require.NoError(t, config.LoadFromFile(path))

	assert.Equal(t, filepath.Join(home, "tasaveer", "settings.json"), config.SettingsPath)
	assert.Equal(t, filepath.Join(home, "Pictures", "Archive"), config.ArchiveDir)
	assert.Equal(t, filepath.Join(home, "tools"), config.Tools.BundleDir)
	assert.Equal(t, "~/bin/exiftool", config.Tools.Paths["exiftool"], "tool paths are expanded when resolved")
	assert.Equal(t, ReaderExiftool, config.Scan.Reader)
	assert.Equal(t, "0.0.0.0:9000", config.RestConfig.HostAddr)
	assert.Equal(t, 8, config.Ingest.TaggingWorkers)
	assert.Equal(t, 5*time.Second, config.Watch.QuietPeriod)
	assert.Equal(t, []watch.Target{{
		Source:      filepath.Join(home, "Card"),
		Destination: filepath.Join(home, "Pictures", "Archive"),
	}}, config.Watch.Targets)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown reader", "scan:\n  reader: magic\n"},
		{"target without destination", "watch:\n  targets:\n    - source: /card\n"},
		{"staging name with separator", "ingest:\n  staging_dir_name: a/b\n"},
		{"bad host", "api:\n  host_address: not a host\n"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			home := withHome(t)
			path := filepath.Join(home, "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(test.content), 0o644))

			var config TasaveerConfig
			assert.ErrorContains(t, config.LoadFromFile(path), "invalid configuration")
		})
	}
}

func TestDestination(t *testing.T) {
	home := withHome(t)

	config := TasaveerConfig{ArchiveDir: "/archive"}
	dest, err := config.Destination("")
	require.NoError(t, err)
	assert.Equal(t, "/archive", dest)

	dest, err = config.Destination("~/elsewhere")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "elsewhere"), dest)

	_, err = (&TasaveerConfig{}).Destination("")
	assert.Error(t, err)
}
