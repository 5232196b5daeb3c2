package obfuscate

import (
	"fmt"
	"os"
	"path"
	"sync"

	"golang.org/x/mod/modfile"

	"github.com/gnolang/gobfus/scanner"
	"github.com/gnolang/gobfus/version"
)

const (
	manifestFile  = "go.mod"
	workspaceFile = "go.work"
)

// manifestMu serializes manifest rewrites.
var manifestMu sync.Mutex

// PatchManifests patches every go.mod under root and returns the paths it
// rewrote. go.work files are aggregates and are left untouched.
func PatchManifests(root string) ([]string, error) {
	files, err := scanner.New(root).Scan()
	if err != nil {
		return nil, fmt.Errorf("scan manifests under %s: %w", root, err)
	}

	var patched []string
	for _, f := range files {
		if scanner.IgnoredByGo(f.Rel) || path.Base(f.Rel) != manifestFile {
			continue
		}
		ok, err := PatchManifest(f.Path)
		if err != nil {
			return patched, err
		}
		if ok {
			patched = append(patched, f.Path)
		}
	}
	return patched, nil
}

// PatchManifest adds the companion requires missing from the go.mod at
// file and reports whether it was rewritten. Patching is idempotent, and
// the manifest of this module itself is never patched.
func PatchManifest(file string) (bool, error) {
	if path.Base(file) == workspaceFile {
		return false, nil
	}

	manifestMu.Lock()
	defer manifestMu.Unlock()

	data, err := os.ReadFile(file)
	if err != nil {
		return false, err
	}
	mf, err := modfile.Parse(file, data, nil)
	if err != nil {
		return false, fmt.Errorf("parse manifest: %w", err)
	}
	if mf.Module != nil && mf.Module.Mod.Path == version.Module {
		return false, nil
	}

	changed := false
	for _, req := range version.Requires() {
		if requires(mf, req[0]) {
			continue
		}
		if err := mf.AddRequire(req[0], req[1]); err != nil {
			return false, fmt.Errorf("require %s: %w", req[0], err)
		}
		changed = true
	}
	if !changed {
		return false, nil
	}

	mf.Cleanup()
	out, err := mf.Format()
	if err != nil {
		return false, err
	}
	return true, os.WriteFile(file, out, 0o644)
}

func requires(mf *modfile.File, modPath string) bool {
	for _, r := range mf.Require {
		if r.Mod.Path == modPath {
			return true
		}
	}
	return false
}
