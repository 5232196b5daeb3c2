package obfuscate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tt "github.com/gnolang/gobfus/internal/types"
	"github.com/gnolang/gobfus/rt/obfstr"
)

func TestResolveKey(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	keyFile := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(keyFile, []byte(key.String()+"\n"), 0o600))

	tests := []struct {
		name      string
		src       KeySource
		want      *obfstr.Key
		generated bool
		errField  string
	}{
		{name: "file", src: KeySource{File: keyFile, Hex: strings.Repeat("ab", 32)}, want: &key},
		{name: "hex", src: KeySource{Hex: key.String(), Dev: true}, want: &key},
		{name: "dev", src: KeySource{Dev: true}, want: &obfstr.Key{}},
		{name: "generated", src: KeySource{}, generated: true},
		{name: "missing file", src: KeySource{File: keyFile + ".missing"}, errField: "key_file"},
		{name: "bad hex", src: KeySource{Hex: "zz"}, errField: "key_hex"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, generated, err := ResolveKey(nil, tc.src)
			if tc.errField != "" {
				var cerr *tt.ConfigError
				require.ErrorAs(t, err, &cerr)
				assert.Equal(t, tc.errField, cerr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.generated, generated)
			if tc.want != nil {
				assert.Equal(t, *tc.want, got)
			} else {
				assert.NotEqual(t, obfstr.Key{}, got)
			}
		})
	}
}

func TestWriteLdflags(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	dir := filepath.Join(t.TempDir(), "out")

	path, err := WriteLdflags(dir, key)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, LdflagsFile), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "-X github.com/gnolang/gobfus/rt/obfstr.keyHex="+key.String()+"\n", string(data))

	_, err = WriteLdflags("", key)
	assert.Error(t, err)
}
