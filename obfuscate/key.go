package obfuscate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/gnolang/gobfus/internal/engine"
	tt "github.com/gnolang/gobfus/internal/types"
	"github.com/gnolang/gobfus/rt/obfstr"
)

// LdflagsFile is written under the output root when the run generated its
// own key.
const LdflagsFile = "gobfus.ldflags"

// KeySource lists where a sealing key may come from, in precedence order.
type KeySource struct {
	// File holds the hex key, surrounding whitespace ignored.
	File string
	Hex  string
	// Dev selects the all-zero development key.
	Dev bool
}

// ResolveKey returns the sealing key and whether it was freshly generated
// because no source provided one.
func ResolveKey(logger *zap.Logger, src KeySource) (obfstr.Key, bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch {
	case src.File != "":
		data, err := os.ReadFile(src.File)
		if err != nil {
			return obfstr.Key{}, false, &tt.ConfigError{Field: "key_file", Err: err}
		}
		k, err := obfstr.ParseKey(strings.TrimSpace(string(data)))
		if err != nil {
			return obfstr.Key{}, false, &tt.ConfigError{Field: "key_file", Err: err}
		}
		return k, false, nil

	case src.Hex != "":
		k, err := obfstr.ParseKey(src.Hex)
		if err != nil {
			return obfstr.Key{}, false, &tt.ConfigError{Field: "key_hex", Err: err}
		}
		return k, false, nil

	case src.Dev:
		logger.Warn("using the all-zero development key; protected literals are readable by anyone")
		return obfstr.Key{}, false, nil
	}

	k, err := obfstr.NewKey()
	if err != nil {
		return obfstr.Key{}, false, err
	}
	return k, true, nil
}

// Ldflags returns the linker flags that link k into a rewritten program.
func Ldflags(k obfstr.Key) string {
	return "-X " + engine.StrImportPath + ".keyHex=" + k.String()
}

// WriteLdflags stores Ldflags(k) under dir and returns the file path.
func WriteLdflags(dir string, k obfstr.Key) (string, error) {
	if dir == "" {
		return "", errors.New("obfuscate: no output directory for linker flags")
	}
	path := filepath.Join(dir, LdflagsFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte(Ldflags(k)+"\n"), 0o600)
}
