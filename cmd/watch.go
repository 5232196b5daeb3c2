package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/gnolang/gobfus/internal/policy"
	"github.com/gnolang/gobfus/obfuscate"
)

func newWatchCmd(ro *rootOptions) *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "watch <file|dir>",
		Short: "Re-run the obfuscation every time a source changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			opts, err := o.options(cmd, ro, args[0])
			if err != nil {
				return err
			}

			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			return obfuscate.Watch(ctx, ro.logger, opts, func(sum *obfuscate.Summary, err error) {
				if err != nil {
					PrintError(errOut, err)
					return
				}
				logSummary(ro.logger, sum)
				printSummary(out, sum, ro.verbose)
			})
		},
	}

	o.register(cmd.Flags())
	policy.RegisterFlags(cmd.Flags())
	return cmd
}
