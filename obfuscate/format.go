package obfuscate

import (
	"context"
	"os/exec"
	"strings"

	tt "github.com/gnolang/gobfus/internal/types"
)

// DefaultFormatter rewrites a file in place with the simplifications gofmt
// knows about.
var DefaultFormatter = []string{"gofmt", "-s", "-w"}

func formatFile(ctx context.Context, argv []string, path string) error {
	args := append(append([]string{}, argv[1:]...), path)
	cmd := exec.CommandContext(ctx, argv[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &tt.ExternalToolError{
			Tool:   argv[0],
			Path:   path,
			Output: strings.TrimSpace(string(out)),
			Err:    err,
		}
	}
	return nil
}
