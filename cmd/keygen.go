package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gnolang/gobfus/obfuscate"
	"github.com/gnolang/gobfus/rt/obfstr"
)

func newKeygenCmd() *cobra.Command {
	var (
		out     string
		ldflags bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a sealing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := obfstr.NewKey()
			if err != nil {
				return err
			}

			if out != "" {
				if err := os.WriteFile(out, []byte(k.String()+"\n"), 0o600); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), k.String())
			}
			if ldflags {
				fmt.Fprintln(cmd.OutOrStdout(), obfuscate.Ldflags(k))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Write the key to this file instead of stdout")
	cmd.Flags().BoolVar(&ldflags, "ldflags", false, "Also print the linker flags for the key")
	return cmd
}
