package cmd

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/gnolang/gobfus/formatter"
	"github.com/gnolang/gobfus/internal/diff"
	"github.com/gnolang/gobfus/internal/policy"
	tt "github.com/gnolang/gobfus/internal/types"
	"github.com/gnolang/gobfus/obfuscate"
)

type runOptions struct {
	output      string
	dryRun      bool
	diff        bool
	diffContext int
	project     bool
	records     string
	format      bool
	formatter   []string
	jobs        int
	progress    bool
	seed        uint64
	keyFile     string
	devKey      bool
}

func (o *runOptions) register(fs *pflag.FlagSet) {
	fs.StringVarP(&o.output, "output", "o", "", "Output root for the transformed tree")
	fs.BoolVar(&o.dryRun, "dry-run", false, "Transform without writing anything")
	fs.BoolVar(&o.diff, "diff", false, "Print a unified diff for every changed file")
	fs.IntVar(&o.diffContext, "diff-context", diff.DefaultContext, "Context lines around each diff hunk")
	fs.BoolVar(&o.project, "project", false, "Copy every other file so the output builds on its own")
	fs.StringVar(&o.records, "records", "", "Write a JSON record per file under this directory")
	fs.BoolVar(&o.format, "format", false, "Run the formatter on every changed output file")
	fs.StringSliceVar(&o.formatter, "formatter", obfuscate.DefaultFormatter, "Formatter command; the file path is appended")
	fs.IntVarP(&o.jobs, "jobs", "j", 1, "Files transformed concurrently")
	fs.BoolVar(&o.progress, "progress", false, "Show a progress bar on stderr")
	fs.Uint64Var(&o.seed, "seed", 0, "Seed for identifier suffixes (random when unset)")
	fs.StringVar(&o.keyFile, "key-file", "", "File holding the hex sealing key")
	fs.BoolVar(&o.devKey, "dev-key", false, "Seal with the all-zero development key")
}

// options resolves the configuration layers and the sealing key into the
// options of one run.
func (o *runOptions) options(cmd *cobra.Command, ro *rootOptions, input string) (obfuscate.Options, error) {
	cfg, err := policy.Load(ro.cfgFile, cmd.Flags())
	if err != nil {
		return obfuscate.Options{}, err
	}
	p, err := policy.Resolve(cfg)
	if err != nil {
		return obfuscate.Options{}, err
	}

	key, generated, err := obfuscate.ResolveKey(ro.logger, obfuscate.KeySource{
		File: o.keyFile,
		Hex:  p.KeyHex,
		Dev:  o.devKey,
	})
	if err != nil {
		return obfuscate.Options{}, err
	}

	seed := o.seed
	if !cmd.Flags().Changed("seed") {
		seed = rand.Uint64()
	}

	return obfuscate.Options{
		Input:        input,
		Output:       o.output,
		Policy:       p,
		Key:          key,
		WriteLdflags: generated,
		Seed:         seed,
		DryRun:       o.dryRun,
		Diff:         o.diff,
		DiffContext:  o.diffContext,
		Project:      o.project,
		Records:      o.records,
		Format:       o.format,
		Formatter:    o.formatter,
		Jobs:         o.jobs,
		Progress:     o.progress,
	}, nil
}

func newRunCmd(ro *rootOptions) *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <file|dir>",
		Short: "Obfuscate a Go source file or project tree",
		Example: `  # Preview the rewrite of a package
  gobfus run ./internal/auth --dry-run --diff

  # Rewrite a whole module into ./obf, ready to build
  gobfus run . -o ./obf --project --format`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := ro.context(cmd.Context())
			defer cancel()

			opts, err := o.options(cmd, ro, args[0])
			if err != nil {
				return err
			}

			sum, err := obfuscate.Run(ctx, ro.logger, opts)
			if err != nil {
				return err
			}
			logSummary(ro.logger, sum)
			printSummary(cmd.OutOrStdout(), sum, ro.verbose)
			return nil
		},
	}

	o.register(cmd.Flags())
	policy.RegisterFlags(cmd.Flags())
	return cmd
}

func printSummary(w io.Writer, sum *obfuscate.Summary, verbose bool) {
	for _, rep := range sum.Reports {
		if verbose {
			fmt.Fprintln(w, formatter.StatusLine(rep))
		}
		if rep.Diff != "" {
			fmt.Fprint(w, formatter.Colorize(rep.Diff))
		}
	}
	fmt.Fprintf(w, "%d changed, %d skipped, %d unchanged\n",
		sum.Count(tt.StatusChanged),
		sum.Count(tt.StatusSkipped),
		sum.Count(tt.StatusUnchanged),
	)
	if sum.Ldflags != "" {
		fmt.Fprintf(w, "build with: go build -ldflags \"$(cat %s)\"\n", sum.Ldflags)
	}
}

func logSummary(logger *zap.Logger, sum *obfuscate.Summary) {
	logger.Debug("run complete",
		zap.String("run_id", sum.RunID),
		zap.Int("changed", sum.Count(tt.StatusChanged)),
		zap.Strings("manifests", sum.Manifests),
	)
}
