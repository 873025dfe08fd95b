// Package cli wires the termindex commands: build, filter, reduce-terms and
// version.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/logger"
)

// version is stamped at link time with -ldflags "-X .../internal/cli.version=...".
var version = "dev"

type configKey struct{}

// NewRootCmd returns the termindex command tree.
func NewRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		logFormat  string
	)
	root := &cobra.Command{
		Use:   "termindex",
		Short: "Build a term-level inverted index from a line-oriented collection",
		Long: `termindex streams a collection of "<external-id> <text>" lines into three
plain-text artifacts: a documents table, a term table and a postings list.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if logFormat != "" {
				cfg.Logging.Format = logFormat
			}
			logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return apperrors.New(apperrors.ErrUsage, apperrors.ExitUsage, err.Error())
	})

	root.AddCommand(
		newBuildCmd(),
		newFilterCmd(),
		newReduceTermsCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree with args and returns the error of the
// command that ran, if any.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	var appErr *apperrors.AppError
	if err != nil && !errors.As(err, &appErr) && isCobraUsageError(err) {
		return apperrors.New(apperrors.ErrUsage, apperrors.ExitUsage, err.Error())
	}
	return err
}

// isCobraUsageError matches the errors cobra returns for unknown commands,
// which bypass the flag error hook.
func isCobraUsageError(err error) bool {
	return strings.HasPrefix(err.Error(), "unknown command ")
}

func configFrom(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// rangeArgs is cobra.RangeArgs returning a usage error.
func rangeArgs(minArgs, maxArgs int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < minArgs || len(args) > maxArgs {
			return apperrors.New(apperrors.ErrUsage, apperrors.ExitUsage,
				fmt.Sprintf("%s: expected %s, got %d argument(s)\nusage: %s", cmd.Name(), plural(minArgs, maxArgs), len(args), cmd.UseLine()))
		}
		return nil
	}
}

func plural(minArgs, maxArgs int) string {
	switch {
	case minArgs == maxArgs && minArgs == 1:
		return "1 argument"
	case minArgs == maxArgs:
		return fmt.Sprintf("%d arguments", minArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", minArgs, maxArgs)
	}
}
