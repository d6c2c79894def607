package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	assert := assert.New(t)
	cfg := Default()

	assert.Equal("info", cfg.LogLevel)
	assert.Equal(8080, cfg.Server.Port)
	assert.Equal("com.hideaway", cfg.Profiles.IdentifierPrefix)
	assert.Equal("deny", cfg.Profiles.Policy)
	assert.True(cfg.Profiles.WebFilter)
	assert.Equal(10*time.Minute, cfg.Enrollment.CacheTTL)
	assert.Equal("http://localhost:9000", cfg.NanoMDM.URL)
	assert.Equal("@hourly", cfg.CatalogRefresh)
	assert.NoError(cfg.Validate())
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	assert := assert.New(t)
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "hideaway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
profiles:
  organization: Focus Controller
  supervised: true
nanomdm:
  url: https://mdm.example.com
sessions:
  - name: study
    preset: Study Mode
    devices: [00008030-001A2B3C4D5E]
    start: "0 9 * * 1-5"
    end: "0 17 * * 1-5"
`), 0644))

	t.Setenv("HIDEAWAY_NANOMDM_API_KEY", "s3cret")
	t.Setenv("HIDEAWAY_SERVER_PORT", "9090")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("policy", "deny", "")
	require.NoError(t, flags.Parse([]string{"--policy", "allow"}))

	cfg, err := Load(path, map[string]*pflag.Flag{"profiles.policy": flags.Lookup("policy")})
	require.NoError(t, err)

	assert.Equal("debug", cfg.LogLevel)
	assert.Equal("Focus Controller", cfg.Profiles.Organization)
	assert.True(cfg.Profiles.Supervised)
	assert.Equal("allow", cfg.Profiles.Policy)
	assert.Equal("https://mdm.example.com", cfg.NanoMDM.URL)
	assert.Equal("s3cret", cfg.NanoMDM.APIKey)
	assert.Equal(9090, cfg.Server.Port)
	require.Len(t, cfg.Sessions, 1)
	assert.Equal("Study Mode", cfg.Sessions[0].Preset)
	assert.Equal([]string{"00008030-001A2B3C4D5E"}, cfg.Sessions[0].Devices)
	assert.NoError(cfg.Validate())
}

func TestLoad_MissingSearchedFileIsFine(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "com.hideaway", cfg.Profiles.IdentifierPrefix)
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile(".env", []byte("HIDEAWAY_PROFILES_ORGANIZATION=Dotenv Ltd\n"), 0644))
	t.Cleanup(func() { _ = os.Unsetenv("HIDEAWAY_PROFILES_ORGANIZATION") })

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "Dotenv Ltd", cfg.Profiles.Organization)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Profiles.Policy = "maybe"
	cfg.Server.MetricsAuth = "nocolon"
	cfg.Server.Domains = []string{"profiles.example.com"}
	cfg.NanoMDM.URL = "ftp://mdm"
	cfg.Sessions = []SessionConfig{{Name: "empty"}}

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, fragment := range []string{
		"profiles.policy",
		"metrics_auth",
		"acme_email",
		"nanomdm.url",
		"needs a preset or apps",
		"has no devices",
		"start and end",
	} {
		assert.Contains(t, msg, fragment)
	}
}
