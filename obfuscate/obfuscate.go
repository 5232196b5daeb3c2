// Package obfuscate drives the engine over a file or a whole project tree.
package obfuscate

import (
	"context"
	"errors"
	"fmt"
	"go/types"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gnolang/gobfus/internal/diff"
	"github.com/gnolang/gobfus/internal/engine"
	"github.com/gnolang/gobfus/internal/policy"
	tt "github.com/gnolang/gobfus/internal/types"
	"github.com/gnolang/gobfus/rt/obfstr"
	"github.com/gnolang/gobfus/scanner"
)

type Options struct {
	// Input is a Go source file or a directory walked recursively.
	Input string
	// Output is the root the transformed tree is written under. It is
	// required unless DryRun is set.
	Output string
	Policy *policy.Policy
	Key    obfstr.Key
	// WriteLdflags stores the linker flags linking Key into rewritten
	// programs under Output.
	WriteLdflags bool
	// Seed drives identifier suffixes.
	Seed uint64

	DryRun      bool
	Diff        bool
	DiffContext int
	// Project copies every other file of the input tree so the output is
	// buildable on its own.
	Project bool
	// Records is the root of the per-file JSON records tree; empty
	// disables records.
	Records string
	Format  bool
	// Formatter is the command run on every written source, the path
	// appended. It defaults to DefaultFormatter.
	Formatter []string
	// Jobs bounds the files transformed concurrently.
	Jobs     int
	Progress bool

	Importer types.Importer
}

// Summary reports a completed run. Reports follow discovery order.
type Summary struct {
	RunID     string
	Reports   []tt.Report
	Manifests []string
	Ldflags   string
}

func (s *Summary) Count(status tt.Status) int {
	n := 0
	for _, r := range s.Reports {
		if r.Status == status {
			n++
		}
	}
	return n
}

type runner struct {
	opts   Options
	logger *zap.Logger
	engine *engine.Engine
	runID  string
	bar    *progressbar.ProgressBar
}

// Run executes one obfuscation run. The first parse or transform error
// aborts the run and is returned; nothing after it is persisted.
func Run(ctx context.Context, logger *zap.Logger, opts Options) (*Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Policy == nil {
		return nil, errors.New("obfuscate: nil policy")
	}
	if !opts.DryRun && opts.Output == "" {
		return nil, &tt.ConfigError{Field: "output", Err: errors.New("required unless running dry")}
	}
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	if opts.DiffContext < 0 {
		opts.DiffContext = diff.DefaultContext
	}
	if len(opts.Formatter) == 0 {
		opts.Formatter = DefaultFormatter
	}

	root, files, single, err := discover(opts)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(opts.Policy, engine.KeySealer{Key: opts.Key}, engine.Options{
		Seed:     opts.Seed,
		Importer: opts.Importer,
	})
	if err != nil {
		return nil, err
	}

	r := &runner{
		opts:   opts,
		logger: logger,
		engine: eng,
		runID:  uuid.NewString(),
	}

	jobs, err := plan(files, opts.Policy, single)
	if err != nil {
		return nil, err
	}

	sum := &Summary{RunID: r.runID, Reports: make([]tt.Report, len(jobs))}
	logger.Debug("discovered sources",
		zap.String("run_id", r.runID),
		zap.String("root", root),
		zap.Int("files", len(jobs)),
	)

	if opts.Progress {
		r.bar = newProgressBar(len(jobs), opts.Input)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Jobs)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep, err := r.process(j)
			if err != nil {
				logger.Error("transform failed", zap.String("path", j.file.Path), zap.Error(err))
				return err
			}
			sum.Reports[i] = rep
			if r.bar != nil {
				r.bar.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if r.bar != nil {
		r.bar.Finish()
	}

	if opts.DryRun {
		return sum, nil
	}

	if opts.Project {
		if err := r.copyRest(files); err != nil {
			return nil, err
		}
	}

	if sum.Count(tt.StatusChanged) > 0 {
		sum.Manifests, err = PatchManifests(opts.Output)
		if err != nil {
			return nil, err
		}
		for _, m := range sum.Manifests {
			logger.Info("patched manifest", zap.String("path", m))
		}
	}

	if opts.Format {
		r.format(ctx, sum.Reports)
	}

	if opts.WriteLdflags && literalsFired(sum.Reports) {
		sum.Ldflags, err = WriteLdflags(opts.Output, opts.Key)
		if err != nil {
			return nil, err
		}
		logger.Info("wrote linker flags for the generated key", zap.String("path", sum.Ldflags))
	}

	return sum, nil
}

func (r *runner) process(j job) (tt.Report, error) {
	rep := tt.Report{Path: j.file.Path, Rel: j.file.Rel}

	if j.skip {
		rep.Status = tt.StatusSkipped
		if r.opts.Project && !r.opts.DryRun {
			out := r.outputPath(j.file.Rel)
			if err := writeFile(out, j.unit.Src); err != nil {
				return rep, err
			}
			rep.OutputPath = out
		}
		return rep, nil
	}

	res, err := r.engine.Transform(j.unit)
	if err != nil {
		return rep, err
	}
	rep.Passes = res.Passes

	changed := diff.DetectChange(res.Original, res.Output)
	if changed {
		rep.Status = tt.StatusChanged
		if r.opts.Diff {
			rep.Diff, err = diff.Render(j.file.Rel, res.Original, res.Output, r.opts.DiffContext)
			if err != nil {
				return rep, fmt.Errorf("render diff for %s: %w", j.file.Rel, err)
			}
		}
	}

	if r.opts.DryRun {
		return rep, nil
	}

	out := r.outputPath(j.file.Rel)
	if err := writeFile(out, res.Output); err != nil {
		return rep, err
	}
	rep.OutputPath = out

	if r.opts.Records != "" {
		if err := r.writeRecord(j.file.Rel, res.Output, changed, res.Passes); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func (r *runner) outputPath(rel string) string {
	return filepath.Join(r.opts.Output, filepath.FromSlash(rel))
}

// copyRest copies the files the run did not write so the output mirrors
// the whole input tree.
func (r *runner) copyRest(files []scanner.FileInfo) error {
	for _, f := range files {
		if f.Source {
			continue
		}
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return err
		}
		if err := writeFile(r.outputPath(f.Rel), data); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) format(ctx context.Context, reports []tt.Report) {
	for _, rep := range reports {
		if rep.Status != tt.StatusChanged || rep.OutputPath == "" {
			continue
		}
		if err := formatFile(ctx, r.opts.Formatter, rep.OutputPath); err != nil {
			r.logger.Warn("formatter failed, keeping unformatted output",
				zap.String("path", rep.OutputPath),
				zap.Error(err),
			)
		}
	}
}

func literalsFired(reports []tt.Report) bool {
	for _, rep := range reports {
		if rep.Passes[tt.PassLiterals] > 0 {
			return true
		}
	}
	return false
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func newProgressBar(n int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
