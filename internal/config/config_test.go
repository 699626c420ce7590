package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartekus/commitgate/internal/checks"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 16, cfg.Window)
	assert.Equal(t, []string{"master", "main"}, cfg.ProtectedBranches)
	assert.Equal(t, 72, cfg.CommitMessage.Length)
	assert.Equal(t, 50, cfg.CommitSummary.SoftLength)
	assert.Equal(t, 72, cfg.CommitSummary.HardLength)
	assert.NotEmpty(t, cfg.Commands)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Window, cfg.Window)
	assert.NotEmpty(t, cfg.Commands)
}

func TestLoadFillsZeroValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
window: 4
ignored: [contributors]
ignore_paths:
  - "vendor/**"
commit_summary:
  soft_length: 60
  hard_length: 90
commands:
  - args: [shellcheck, --format=gcc, /dev/stdin]
    extension: sh
    bogus_exit_code: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Window)
	assert.Equal(t, []string{"contributors"}, cfg.Ignored)
	assert.Equal(t, []string{"vendor/**"}, cfg.IgnorePaths)
	assert.Equal(t, 60, cfg.CommitSummary.SoftLength)
	assert.Equal(t, 90, cfg.CommitSummary.HardLength)

	// Unset sections fall back to the defaults.
	assert.Equal(t, 72, cfg.CommitMessage.Length)
	assert.Equal(t, []string{"master", "main"}, cfg.ProtectedBranches)

	require.Len(t, cfg.Commands, 1)
	assert.Equal(t, "sh", cfg.Commands[0].Extension)
	assert.True(t, cfg.Commands[0].BogusExitCode)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window: [not a number"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestChecksBuildsTemplates(t *testing.T) {
	templates, err := Default().Checks()
	require.NoError(t, err)

	var names []string
	for _, c := range templates {
		names = append(names, c.String())
	}
	assert.Contains(t, names, "CheckDuplicateSummaries")
	assert.Contains(t, names, "CheckContributors")
	assert.Contains(t, names, `CheckSyntax "json"`)
	assert.Contains(t, names, `CheckCommand "flake8"`)
}

func TestChecksHonorsIgnored(t *testing.T) {
	cfg := Default()
	cfg.Ignored = []string{"contributors", "command_flake8"}
	templates, err := cfg.Checks()
	require.NoError(t, err)

	for _, c := range templates {
		assert.NotEqual(t, "CheckContributors", c.String())
		assert.NotEqual(t, `CheckCommand "flake8"`, c.String())
	}
}

func TestChecksResolvesPreferred(t *testing.T) {
	templates, err := Default().Checks()
	require.NoError(t, err)

	var pycodestyle *checks.CheckCommand
	for _, c := range templates {
		if cmd, ok := c.(*checks.CheckCommand); ok && cmd.Args[0] == "pycodestyle" {
			pycodestyle = cmd
		}
	}
	require.NotNil(t, pycodestyle)
	require.Len(t, pycodestyle.Preferred, 1)
	assert.Equal(t, `CheckCommand "flake8"`, pycodestyle.Preferred[0].String())
}

func TestChecksWiresRubocopFilePath(t *testing.T) {
	templates, err := Default().Checks()
	require.NoError(t, err)

	var rubocop *checks.CheckCommand
	for _, c := range templates {
		if cmd, ok := c.(*checks.CheckCommand); ok && cmd.Args[0] == "rubocop" {
			rubocop = cmd
		}
	}
	require.NotNil(t, rubocop)
	assert.True(t, rubocop.AppendFilePath)
	assert.NotContains(t, rubocop.Args, "/dev/stdin")
}

func TestChecksRejectsForwardPreference(t *testing.T) {
	cfg := Default()
	cfg.Commands = []CommandOptions{
		{Args: []string{"jshint"}, Extension: "js", Preferred: []string{"eslint"}},
		{Args: []string{"eslint"}, Extension: "js"},
	}
	_, err := cfg.Checks()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eslint")
}

func TestChecksRejectsDuplicateNames(t *testing.T) {
	cfg := Default()
	cfg.Commands = []CommandOptions{
		{Args: []string{"flake8", "-"}},
		{Args: []string{"flake8"}},
	}
	_, err := cfg.Checks()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defined twice")
}

func TestChecksRejectsBadExePattern(t *testing.T) {
	cfg := Default()
	cfg.Commands = []CommandOptions{
		{Args: []string{"flake8"}, ExePattern: "("},
	}
	_, err := cfg.Checks()
	assert.Error(t, err)
}
