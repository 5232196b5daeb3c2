package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gnolang/gobfus/obfuscate"
	"github.com/gnolang/gobfus/rt/obfstr"
)

func newRevealCmd(ro *rootOptions) *cobra.Command {
	var src obfuscate.KeySource

	cmd := &cobra.Command{
		Use:   "reveal <token>...",
		Short: "Decrypt protected literal tokens with a known key",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if src.File == "" && src.Hex == "" && !src.Dev {
				return errors.New("reveal needs --key-file, --key-hex or --dev-key")
			}
			k, _, err := obfuscate.ResolveKey(ro.logger, src)
			if err != nil {
				return err
			}

			for _, token := range args {
				plain, err := obfstr.Open(k, token)
				if err != nil {
					return fmt.Errorf("%s: %w", token, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%q\n", plain)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&src.File, "key-file", "", "File holding the hex sealing key")
	cmd.Flags().StringVar(&src.Hex, "key-hex", "", "Hex-encoded sealing key")
	cmd.Flags().BoolVar(&src.Dev, "dev-key", false, "Use the all-zero development key")
	return cmd
}
