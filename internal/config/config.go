// Package config loads the gate configuration and builds the check
// templates from it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the configuration file is looked up, relative
// to the working directory the hook runs in.
const DefaultPath = ".commitgate.yaml"

// Config is the YAML configuration surface. Zero values fall back to
// the defaults.
type Config struct {
	// Window is the size of the scheduler's buffering window, which
	// bounds how many external processes run at once.
	Window int `yaml:"window"`

	// Ignored disables checks by key.
	Ignored []string `yaml:"ignored"`

	// IgnorePaths excludes changed files from file-stage checks, as
	// doublestar glob patterns.
	IgnorePaths []string `yaml:"ignore_paths"`

	// ProtectedBranches are branch names merges from which are
	// flagged as misleading.
	ProtectedBranches []string `yaml:"protected_branches"`

	CommitMessage    CommitMessageOptions    `yaml:"commit_message"`
	CommitSummary    CommitSummaryOptions    `yaml:"commit_summary"`
	ChangedFilePaths ChangedFilePathsOptions `yaml:"changed_file_paths"`

	// Commands replaces the built-in external command set when given.
	Commands []CommandOptions `yaml:"commands"`
}

type CommitMessageOptions struct {
	Length int `yaml:"length"`
}

type CommitSummaryOptions struct {
	SoftLength int `yaml:"soft_length"`
	HardLength int `yaml:"hard_length"`
}

type ChangedFilePathsOptions struct {
	Extensions []string `yaml:"extensions"`
}

// CommandOptions configures one external command check.
type CommandOptions struct {
	// Name identifies the command for Preferred references; it
	// defaults to Args[0].
	Name string `yaml:"name"`

	Args           []string `yaml:"args"`
	Extension      string   `yaml:"extension"`
	ExePattern     string   `yaml:"exe_pattern"`
	Header         int      `yaml:"header"`
	Footer         int      `yaml:"footer"`
	ConfigFiles    []string `yaml:"config_files"`
	ConfigRequired bool     `yaml:"config_required"`
	BogusExitCode  bool     `yaml:"bogus_exit_code"`
	AppendFilePath bool     `yaml:"append_file_path"`

	// Preferred names commands that make this one redundant when they
	// accept the same file.
	Preferred []string `yaml:"preferred"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Window:            16,
		ProtectedBranches: []string{"master", "main"},
		CommitMessage:     CommitMessageOptions{Length: 72},
		CommitSummary:     CommitSummaryOptions{SoftLength: 50, HardLength: 72},
		ChangedFilePaths:  ChangedFilePathsOptions{Extensions: []string{"pp", "py", "sh"}},
		Commands:          defaultCommands(),
	}
}

// Load reads the configuration file, returning the defaults when it
// does not exist. Options left at their zero value are filled in from
// the defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	defaults := Default()
	if cfg.Window == 0 {
		cfg.Window = defaults.Window
	}
	if cfg.ProtectedBranches == nil {
		cfg.ProtectedBranches = defaults.ProtectedBranches
	}
	if cfg.CommitMessage.Length == 0 {
		cfg.CommitMessage = defaults.CommitMessage
	}
	if cfg.CommitSummary.SoftLength == 0 && cfg.CommitSummary.HardLength == 0 {
		cfg.CommitSummary = defaults.CommitSummary
	}
	if cfg.ChangedFilePaths.Extensions == nil {
		cfg.ChangedFilePaths = defaults.ChangedFilePaths
	}
	if cfg.Commands == nil {
		cfg.Commands = defaults.Commands
	}
	return cfg, nil
}

// Now is the reference clock for timestamp checks, captured once when
// the templates are built.
func Now() time.Time { return time.Now() }

// defaultCommands is the built-in external command set. Preferences
// keep the generic linters quiet when a stricter one handles the file.
func defaultCommands() []CommandOptions {
	return []CommandOptions{
		{
			Args:        []string{"csslint", "--format=compact", "/dev/stdin"},
			Extension:   "css",
			ConfigFiles: []string{".csslintrc"},
		},
		{
			Args:      []string{"golint", "/dev/stdin"},
			Extension: "go",
		},
		{
			Args:        []string{"htmlhint", "--format=unix", "/dev/stdin"},
			Extension:   "html",
			Footer:      2,
			ConfigFiles: []string{".htmlhintrc"},
		},
		{
			Args: []string{
				"puppet", "parser", "validate",
				"--color=false", "--confdir=/tmp", "--vardir=/tmp",
			},
			Extension:  "pp",
			ExePattern: "^puppet",
		},
		{
			Args:        []string{"puppet-lint", "--no-autoloader_layout-check", "/dev/stdin"},
			Extension:   "pp",
			ExePattern:  "^puppet",
			ConfigFiles: []string{".puppet-lint.rc"},
		},
		{
			Args:        []string{"flake8", "-"},
			Extension:   "py",
			ExePattern:  "^python",
			ConfigFiles: []string{"setup.cfg", "tox.ini", ".flake8"},
		},
		{
			Args:        []string{"pycodestyle", "-"},
			Extension:   "py",
			ExePattern:  "^python",
			ConfigFiles: []string{"setup.cfg", "tox.ini"},
			Preferred:   []string{"flake8"},
		},
		{
			Args:       []string{"pyflakes"},
			Extension:  "py",
			ExePattern: "^python",
			Preferred:  []string{"flake8"},
		},
		{
			Args:        []string{"rubocop", "--format=emacs", "--stdin"},
			Extension:   "rb",
			ExePattern:  "^ruby",
			ConfigFiles: []string{".rubocop.yml"},
			// Rubocop wants a file argument with --stdin. It never
			// reads the file, only matches it against Exclude rules.
			AppendFilePath: true,
		},
		{
			Args:          []string{"shellcheck", "--format=gcc", "/dev/stdin"},
			Extension:     "sh",
			ExePattern:    "sh$",
			BogusExitCode: true,
		},
		{
			Args:       []string{"eslint", "--format=unix", "--quiet", "--stdin"},
			Extension:  "js",
			ExePattern: "js$",
			ConfigFiles: []string{
				"package.json",
				".eslintrc.js", ".eslintrc.yaml", ".eslintrc.yml", ".eslintrc.json",
			},
			ConfigRequired: true,
		},
		{
			Args:        []string{"jshint", "--reporter=unix", "/dev/stdin"},
			Extension:   "js",
			ExePattern:  "js$",
			ConfigFiles: []string{"package.json", ".jshintrc"},
			Preferred:   []string{"eslint"},
		},
		{
			Args:           []string{"jscs", "--max-errors=-1", "--reporter=unix"},
			Extension:      "js",
			ExePattern:     "js$",
			ConfigFiles:    []string{"package.json", ".jscsrc", ".jscs.json"},
			ConfigRequired: true,
			Preferred:      []string{"eslint", "jshint"},
		},
		{
			Args:       []string{"standard", "--stdin"},
			Extension:  "js",
			ExePattern: "js$",
			Header:     2,
			Preferred:  []string{"eslint", "jshint", "jscs"},
		},
		{
			Args:        []string{"coffeelint", "--stdin", "--reporter=csv"},
			Extension:   "coffee",
			ExePattern:  "^coffee",
			Header:      1,
			ConfigFiles: []string{"coffeelint.json", "package.json"},
		},
		{
			Args:        []string{"phpcs", "-q", "--report=emacs"},
			Extension:   "php",
			ExePattern:  "^php",
			ConfigFiles: []string{"phpcs.xml", "phpcs.xml.dist"},
		},
	}
}
