// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bartekus/commitgate/cmd/commitgate/internal/clierr"
	"github.com/bartekus/commitgate/internal/check"
	"github.com/bartekus/commitgate/internal/config"
	"github.com/bartekus/commitgate/internal/gate"
	"github.com/bartekus/commitgate/internal/git"
)

// NewRootCmd constructs the commitgate root Cobra command. Running it
// with no subcommand behaves as a pre-receive hook: ref update lines on
// stdin, problem reports on stdout.
func NewRootCmd() *cobra.Command {
	version := os.Getenv("COMMITGATE_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	cmd := &cobra.Command{
		Use:           "commitgate",
		Short:         "commitgate - a pre-receive hook checking pushed commits",
		Long:          "commitgate checks the commits a push brings in, from commit messages to the syntax of changed files, before they are accepted.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runGate,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().StringP("config", "c", config.DefaultPath, "configuration file path")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of commitgate",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "commitgate version %s\n", version)
		},
	})

	cmd.AddCommand(newChecksCmd())

	return cmd
}

func runGate(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	cfg, templates, err := loadTemplates(cmd)
	if err != nil {
		return acceptAnyway(cmd, logger, err)
	}

	backend, err := git.NewExec()
	if err != nil {
		return acceptAnyway(cmd, logger, err)
	}

	g := gate.New(backend, templates, gate.Options{
		Window:      cfg.Window,
		IgnorePaths: cfg.IgnorePaths,
		Output:      cmd.OutOrStdout(),
		Logger:      logger,
	})

	state, err := g.Run(cmd.Context(), cmd.InOrStdin())
	return settle(cmd, logger, state, err)
}

// settle maps the run outcome to the hook exit. An internal error lets
// the push through, except when a check already failed before the error
// surfaced; the rejection then stands.
func settle(cmd *cobra.Command, logger *slog.Logger, state check.State, err error) error {
	if state >= check.StateFailed {
		if err != nil {
			logger.Error("hook failed", "error", err)
			return clierr.Wrap(1, "push rejected", err)
		}
		return clierr.New(1, "push rejected")
	}
	if err != nil {
		return acceptAnyway(cmd, logger, err)
	}
	return nil
}

// acceptAnyway lets the push through on internal failures. Rejecting
// commits over a broken hook would block everyone's work.
func acceptAnyway(cmd *cobra.Command, logger *slog.Logger, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr())
	fmt.Fprintln(cmd.ErrOrStderr(), "An error occurred, but the commits are accepted.")
	logger.Error("hook failed", "error", err)
	return nil
}

func newChecksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checks",
		Short: "List the configured checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, templates, err := loadTemplates(cmd)
			if err != nil {
				return err
			}
			for _, c := range templates {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

func loadTemplates(cmd *cobra.Command) (*config.Config, []check.Check, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	templates, err := cfg.Checks()
	if err != nil {
		return nil, nil, err
	}
	return cfg, templates, nil
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
