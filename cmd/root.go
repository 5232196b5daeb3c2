// Package cmd implements the gobfus command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/gobfus/version"
)

type rootOptions struct {
	cfgFile string
	verbose bool
	timeout time.Duration

	logger *zap.Logger
}

// NewRootCmd creates the command tree.
func NewRootCmd() *cobra.Command {
	ro := &rootOptions{logger: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:     "gobfus",
		Short:   "gobfus - protect literals and obscure control flow in Go sources",
		Version: version.Runtime,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(ro.verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			ro.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = ro.logger.Sync()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&ro.cfgFile, "config", "c", "", "Configuration file (default: ./.gobfus.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&ro.verbose, "verbose", "v", false, "Print per-file status lines and debug logs")
	rootCmd.PersistentFlags().DurationVar(&ro.timeout, "timeout", 0, "Abort a run after this long (0 disables)")

	rootCmd.AddCommand(newRunCmd(ro))
	rootCmd.AddCommand(newWatchCmd(ro))
	rootCmd.AddCommand(newInitCmd(ro))
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newRevealCmd(ro))

	return rootCmd
}

// Execute runs the command line and renders a failure on stderr.
func Execute() error {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(defaultToRun(rootCmd, os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		PrintError(os.Stderr, err)
		return err
	}
	return nil
}

// defaultToRun makes run the default command: arguments that do not name a
// subcommand are handed to run.
func defaultToRun(rootCmd *cobra.Command, args []string) []string {
	if len(args) == 0 {
		return args
	}
	if _, _, err := rootCmd.Find(args); err == nil {
		return args
	}
	return append([]string{"run"}, args...)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func (ro *rootOptions) context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if ro.timeout > 0 {
		return context.WithTimeout(parent, ro.timeout)
	}
	return context.WithCancel(parent)
}

// PrintError writes err to w, with the offending source line when err
// carries a position.
func PrintError(w io.Writer, err error) {
	fmt.Fprint(w, renderError(err))
}
