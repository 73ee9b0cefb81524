package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackcoderx/corpusctl/pkg/collector/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o640))
	return path
}

func TestLoadRejectsUnknownRuleField(t *testing.T) {
	t.Setenv("TEST_API_TOKEN", "secret-value")
	path := writeConfig(t, `
output_dir: /tmp/out
state_file: /tmp/state.json
rate_limit_seconds: 1
rules:
  - name: r1
    source: fixture
    actions: [save]
    auth_token: ${TEST_API_TOKEN}
`)
	// auth_token isn't a recognized Rule field, so this should fail
	// strict decoding -- verifying unknown fields are rejected.
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadSubstitutesEnvironmentValue(t *testing.T) {
	t.Setenv("STATE_PATH", "/tmp/resolved-state.json")
	path := writeConfig(t, `
output_dir: /tmp/out
state_file: ${STATE_PATH}
rules: []
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/resolved-state.json", cfg.StateFile)
}

func TestLoadRejectsNestedSubstitution(t *testing.T) {
	t.Setenv("OUTER", "${INNER}")
	path := writeConfig(t, `
output_dir: ${OUTER}
state_file: /tmp/state.json
rules: []
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidEnvName(t *testing.T) {
	path := writeConfig(t, `
output_dir: ${lower_case_not_allowed}
state_file: /tmp/state.json
rules: []
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadAppliesDefaultsAndCascade(t *testing.T) {
	path := writeConfig(t, `
output_dir: /tmp/out
state_file: /tmp/state.json
default_filters:
  exclude_keywords: ["*promotional*"]
rules:
  - name: r1
    source: fixture
    actions: [save]
    filters:
      exclude_keywords: ["*draft*"]
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10000, cfg.StateRetainCount)

	effective := cfg.Rules[0].Criteria(cfg.DefaultCriteria())
	assert.ElementsMatch(t, []string{"*promotional*", "*draft*"}, effective.ExcludeKeywords)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	path := writeConfig(t, `
state_file: /tmp/state.json
rules: []
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDuplicateRuleNames(t *testing.T) {
	path := writeConfig(t, `
output_dir: /tmp/out
state_file: /tmp/state.json
rules:
  - name: dup
    source: fixture
    actions: [save]
  - name: dup
    source: fixture
    actions: [save]
`)
	_, err := config.Load(path)
	require.Error(t, err)
}
