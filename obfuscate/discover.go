package obfuscate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gnolang/gobfus/internal/engine"
	"github.com/gnolang/gobfus/internal/policy"
	tt "github.com/gnolang/gobfus/internal/types"
	"github.com/gnolang/gobfus/scanner"
)

const (
	sourceExt   = ".go"
	assemblyExt = ".s"
)

type job struct {
	file scanner.FileInfo
	unit engine.Unit
	skip bool
}

// discover resolves the input into the root relative paths are computed
// from and the files under it in lexical order. single reports a file
// input.
func discover(opts Options) (root string, files []scanner.FileInfo, single bool, err error) {
	info, err := os.Stat(opts.Input)
	if err != nil {
		return "", nil, false, fmt.Errorf("%w: %s: %v", tt.ErrInputNotFound, opts.Input, err)
	}

	if !info.IsDir() {
		if !scanner.HasExtension(opts.Input, sourceExt) {
			return "", nil, false, fmt.Errorf("%w: %s is not a Go source file", tt.ErrInputNotFound, opts.Input)
		}
		return filepath.Dir(opts.Input), []scanner.FileInfo{{
			Path:   opts.Input,
			Rel:    filepath.Base(opts.Input),
			Size:   info.Size(),
			Source: true,
		}}, true, nil
	}

	s := scanner.New(opts.Input, sourceExt)
	for _, dir := range []string{opts.Output, opts.Records} {
		if dir != "" {
			s.Exclude(dir)
		}
	}
	files, err = s.Scan()
	if err != nil {
		return "", nil, false, fmt.Errorf("scan %s: %w", opts.Input, err)
	}
	return opts.Input, files, false, nil
}

type pkgDir struct {
	rel  string
	srcs map[string][]byte
	// keepFuncs is set when some file of the package is not transformed.
	keepFuncs bool
}

// plan reads every source and builds one job per source in discovery
// order. Files of a directory are handed to the engine together so renamed
// functions agree across the package. With a single input file its
// neighbours are read for type information only.
func plan(files []scanner.FileInfo, p *policy.Policy, single bool) ([]job, error) {
	dirs := make(map[string]*pkgDir)
	dirOf := func(f scanner.FileInfo) *pkgDir {
		dir := filepath.Dir(f.Path)
		d, ok := dirs[dir]
		if !ok {
			d = &pkgDir{rel: filepath.ToSlash(filepath.Dir(f.Rel)), srcs: make(map[string][]byte)}
			dirs[dir] = d
		}
		return d
	}

	var jobs []job
	for _, f := range files {
		if !f.Source {
			if scanner.HasExtension(f.Path, assemblyExt) {
				dirOf(f).keepFuncs = true
			}
			continue
		}
		src, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, err
		}
		d := dirOf(f)
		d.srcs[f.Path] = src

		skip := !p.AppliesTo(f.Path, f.Rel)
		if skip {
			d.keepFuncs = true
		}
		jobs = append(jobs, job{
			file: f,
			unit: engine.Unit{Filename: f.Path, Src: src, PkgDir: d.rel},
			skip: skip,
		})
	}

	if single && len(files) == 1 {
		if err := readNeighbours(dirOf(files[0]), files[0].Path); err != nil {
			return nil, err
		}
	}

	for i := range jobs {
		d := dirs[filepath.Dir(jobs[i].file.Path)]
		jobs[i].unit.Siblings = d.srcs
		jobs[i].unit.KeepFuncs = d.keepFuncs
	}
	return jobs, nil
}

func readNeighbours(d *pkgDir, path string) error {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		p := filepath.Join(dir, name)
		if p == path {
			continue
		}
		switch {
		case scanner.HasExtension(name, sourceExt):
			src, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			d.srcs[p] = src
			d.keepFuncs = true
		case scanner.HasExtension(name, assemblyExt):
			d.keepFuncs = true
		}
	}
	return nil
}
