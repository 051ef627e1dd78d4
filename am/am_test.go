package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/kwpulse/internal/util"
)

// isolate points HOME and the working directory at fresh temp dirs and
// clears the cached config.
func isolate(t *testing.T) (home, project string) {
	t.Helper()
	home = t.TempDir()
	project = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("KWPULSE_DATABASE_PATH", "")
	t.Setenv("KWPULSE_OPENROUTER_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Chdir(project)
	Reset()
	t.Cleanup(Reset)
	return home, project
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), DefaultDirPermissions))
	require.NoError(t, os.WriteFile(path, []byte(content), DefaultFilePermissions))
}

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.KeywordDelay())
	assert.Equal(t, 500*time.Millisecond, cfg.ProviderDelay())
	assert.Equal(t, 15*time.Second, cfg.CatalogTimeout())
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL())
	assert.Equal(t, CacheMemory, cfg.Catalog.Cache.Backend)
	assert.Equal(t, DefaultOpenRouterModel, cfg.OpenRouter.Model)
	assert.Nil(t, cfg.OpenRouter.Temperature)
	assert.Equal(t, DefaultMetricsAddress, cfg.Metrics.Address)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	home, project := isolate(t)

	writeFile(t, filepath.Join(home, ".kwpulse", "config.toml"), `
[discovery]
keyword_delay_ms = 100

[openrouter]
model = "user/model"
`)
	writeFile(t, filepath.Join(project, ProjectConfigName), `
[database]
path = "project.db"

[openrouter]
model = "project/model"
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "project.db", cfg.Database.Path)
	assert.Equal(t, "project/model", cfg.OpenRouter.Model)
	assert.Equal(t, 100, cfg.Discovery.KeywordDelayMS, "user value survives project merge")

	assert.Equal(t, SourceProject, ConfigSources["openrouter.model"].Source)
	assert.Equal(t, SourceUser, ConfigSources["discovery.keyword_delay_ms"].Source)
	assert.Len(t, LoadedFiles(), 2)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	_, project := isolate(t)
	writeFile(t, filepath.Join(project, ProjectConfigName), "[database]\npath = \"project.db\"\n")

	t.Setenv("KWPULSE_DATABASE_PATH", "env.db")
	t.Setenv("KWPULSE_DISCOVERY_PROVIDER_DELAY_MS", "0")
	t.Setenv("OPENROUTER_API_KEY", "sk-fallback")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Database.Path)
	assert.Zero(t, cfg.Discovery.ProviderDelayMS)
	assert.Equal(t, "sk-fallback", cfg.OpenRouter.APIKey)
}

func TestLoad_Cached(t *testing.T) {
	isolate(t)

	first, err := Load()
	require.NoError(t, err)
	second, err := Load()
	require.NoError(t, err)
	assert.Same(t, first, second)

	Reset()
	third, err := Load()
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, DefaultDirPermissions))

	t.Run("walks up", func(t *testing.T) {
		writeFile(t, filepath.Join(root, "a", ProjectConfigName), "")
		t.Chdir(sub)

		found := findProjectConfig()
		require.NotEmpty(t, found)
		assert.True(t, filepath.IsAbs(found))
		assert.Equal(t, filepath.Join(root, "a", ProjectConfigName), found)
	})

	t.Run("none found", func(t *testing.T) {
		t.Chdir(t.TempDir())
		assert.Empty(t, findProjectConfig())
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero delays are valid", func(c *Config) { c.Discovery.KeywordDelayMS = 0; c.Discovery.ProviderDelayMS = 0 }, false},
		{"negative keyword delay", func(c *Config) { c.Discovery.KeywordDelayMS = -1 }, true},
		{"negative reconcile interval", func(c *Config) { c.Discovery.ReconcileIntervalSeconds = -5 }, true},
		{"search limit too large", func(c *Config) { c.Discovery.SearchLimit = 500 }, true},
		{"zero catalog timeout", func(c *Config) { c.Catalog.TimeoutSeconds = 0 }, true},
		{"unknown cache backend", func(c *Config) { c.Catalog.Cache.Backend = "memcached" }, true},
		{"redis without addr", func(c *Config) { c.Catalog.Cache.Backend = CacheRedis; c.Catalog.Cache.RedisAddr = "" }, true},
		{"cache disabled ignores ttl", func(c *Config) { c.Catalog.Cache.Backend = CacheNone; c.Catalog.Cache.TTLSeconds = 0 }, false},
		{"temperature out of range", func(c *Config) { c.OpenRouter.Temperature = util.Ptr(3.0) }, true},
		{"zero max tokens", func(c *Config) { c.OpenRouter.MaxTokens = util.Ptr(0) }, true},
		{"negative budget", func(c *Config) { c.Budget.MonthlyUSD = -1 }, true},
		{"budget limits set", func(c *Config) { c.Budget.DailyUSD = 2; c.Budget.MonthlyUSD = 20 }, false},
		{"bad metrics address", func(c *Config) { c.Metrics.Address = "nowhere" }, true},
		{"metrics disabled ignores address", func(c *Config) { c.Metrics.Enabled = false; c.Metrics.Address = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_StringHidesSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OpenRouter.APIKey = "sk-secret"

	s := cfg.String()
	assert.NotContains(t, s, "sk-secret")
	assert.Contains(t, s, "OpenRouterKey: true")
}
