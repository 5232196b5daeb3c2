// Package scanner walks an input tree and classifies the files an
// obfuscation run has to transform or copy.
package scanner

import (
	"io/fs"
	"path/filepath"
	"strings"
)

type FileInfo struct {
	Path string
	// Rel is Path relative to the scanned root, slash-separated.
	Rel  string
	Size int64
	// Source is set for files matching one of the target extensions
	// outside vendor and testdata directories.
	Source bool
}

type Scanner struct {
	rootDir    string
	extensions []string
	exclude    []string
}

// New returns a scanner for rootDir. Extensions are matched
// case-insensitively; with none given every file is a source.
func New(rootDir string, extensions ...string) *Scanner {
	return &Scanner{
		rootDir:    rootDir,
		extensions: extensions,
	}
}

// Exclude makes the walk skip dirs entirely, e.g. an output root nested in
// the input.
func (s *Scanner) Exclude(dirs ...string) *Scanner {
	for _, dir := range dirs {
		if abs, err := filepath.Abs(dir); err == nil {
			s.exclude = append(s.exclude, abs)
		}
	}
	return s
}

// Scan returns the regular files under the root in lexical order.
// Dot-directories are skipped. Files the go tool ignores (under vendor,
// testdata or _dirs, or named with a leading _ or .) are returned but never
// marked as sources.
func (s *Scanner) Scan() ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != s.rootDir && s.skipDir(path, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.rootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		files = append(files, FileInfo{
			Path:   path,
			Rel:    rel,
			Size:   info.Size(),
			Source: s.isTargetFile(path) && !IgnoredByGo(rel),
		})
		return nil
	})

	return files, err
}

func (s *Scanner) skipDir(path, name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, ex := range s.exclude {
		if abs == ex {
			return true
		}
	}
	return false
}

// IgnoredByGo reports whether the go tool would leave the slash-separated
// path rel out of a build.
func IgnoredByGo(rel string) bool {
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, "_") || strings.HasPrefix(part, ".") {
			return true
		}
		if i < len(parts)-1 && (part == "vendor" || part == "testdata") {
			return true
		}
	}
	return false
}

func (s *Scanner) isTargetFile(path string) bool {
	return HasExtension(path, s.extensions...)
}

// HasExtension reports whether path ends with one of extensions, ignoring
// case. No extensions matches everything.
func HasExtension(path string, extensions ...string) bool {
	if len(extensions) == 0 {
		return true
	}

	ext := filepath.Ext(path)
	for _, targetExt := range extensions {
		if strings.EqualFold(ext, targetExt) {
			return true
		}
	}
	return false
}
