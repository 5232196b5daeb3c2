package cmd

import (
	"errors"
	"os"

	"github.com/gnolang/gobfus/formatter"
	tt "github.com/gnolang/gobfus/internal/types"
)

func renderError(err error) string {
	var (
		path string
		perr *tt.ParseError
		terr *tt.TransformError
	)
	switch {
	case errors.As(err, &terr):
		path = terr.Pos.Filename
	case errors.As(err, &perr):
		path = perr.Path
	}

	var src []byte
	if path != "" {
		// the snippet is optional; a vanished file still gets its message
		src, _ = os.ReadFile(path)
	}
	return formatter.FormatError(err, src)
}
