package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectChange(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical", "package a\n", "package a\n", false},
		{"both empty", "", "", false},
		{"whitespace only", "package a\n", "package a \n", true},
		{"rewritten", "x := \"a\"\n", "x := obfstr.S(\"t\")\n", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectChange([]byte(tc.a), []byte(tc.b)))
		})
	}
}

func TestRenderUnchanged(t *testing.T) {
	t.Parallel()
	out, err := Render("main.go", []byte("package main\n"), []byte("package main\n"), 3)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRender(t *testing.T) {
	t.Parallel()
	original := "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n"
	transformed := "package main\n\nfunc main() {\n\tprintln(obfstr.S(\"tok\"))\n}\n"

	out, err := Render("cmd/app/main.go", []byte(original), []byte(transformed), 1)
	require.NoError(t, err)

	expected := `--- a/cmd/app/main.go
+++ b/cmd/app/main.go
@@ -3,3 +3,3 @@
 func main() {
-	println("hi")
+	println(obfstr.S("tok"))
 }
`
	assert.Equal(t, expected, out)
}

func TestRenderContext(t *testing.T) {
	t.Parallel()
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = "line"
	}
	original := strings.Join(lines, "\n") + "\n"
	lines[10] = "changed"
	transformed := strings.Join(lines, "\n") + "\n"

	narrow, err := Render("f.go", []byte(original), []byte(transformed), 0)
	require.NoError(t, err)
	wide, err := Render("f.go", []byte(original), []byte(transformed), 5)
	require.NoError(t, err)

	assert.Contains(t, narrow, "@@ -11 +11 @@")
	assert.Less(t, strings.Count(narrow, "\n"), strings.Count(wide, "\n"))
}
