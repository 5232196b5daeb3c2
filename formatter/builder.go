package formatter

import (
	"bytes"
	"errors"
	"fmt"
	"go/scanner"
	"strings"
	"text/template"
	"unicode"

	"github.com/fatih/color"

	tt "github.com/gnolang/gobfus/internal/types"
)

const tabWidth = 8

var (
	errorStyle   = color.New(color.FgRed, color.Bold)
	warningStyle = color.New(color.FgHiYellow, color.Bold)
	ruleStyle    = color.New(color.FgYellow, color.Bold)
	fileStyle    = color.New(color.FgCyan, color.Bold)
	lineStyle    = color.New(color.FgHiBlue, color.Bold)
	messageStyle = color.New(color.FgRed, color.Bold)
	addStyle     = color.New(color.FgGreen)
	delStyle     = color.New(color.FgRed)
	hunkStyle    = color.New(color.FgCyan)
	noStyle      = color.New(color.FgWhite)
)

const errorTemplate = `{{header .Kind .Stage .MaxLineNumWidth .Filename .Line .Column -}}
{{if .Line}}{{snippet .SnippetLines .Line .MaxLineNumWidth .CommonIndent .Padding -}}
{{caret .Message .Padding .Line .Column .SnippetLines .CommonIndent}}{{else}}{{message .Message}}{{end}}`

var errorTmpl = template.Must(template.New("error").Funcs(template.FuncMap{
	"header":  header,
	"snippet": codeSnippet,
	"caret":   caretAndMessage,
	"message": message,
}).Parse(errorTemplate))

type errorData struct {
	Kind            string
	Stage           string
	Filename        string
	Line            int
	Column          int
	MaxLineNumWidth int
	Padding         string
	Message         string
	SnippetLines    []string
	CommonIndent    string
}

// FormatError renders a parse or transform failure with the offending
// source line. src may be nil, in which case only the header and message are
// shown.
func FormatError(err error, src []byte) string {
	data := errorData{Kind: "failed", Message: err.Error()}

	var (
		perr *tt.ParseError
		terr *tt.TransformError
	)
	switch {
	case errors.As(err, &terr):
		data.Kind = "transform failed"
		data.Stage = string(terr.Pass)
		data.Filename = terr.Pos.Filename
		data.Line, data.Column = terr.Pos.Line, terr.Pos.Column
		data.Message = terr.Err.Error()
	case errors.As(err, &perr):
		data.Kind = "parse failed"
		data.Filename = perr.Path
		var list scanner.ErrorList
		if errors.As(perr.Err, &list) && len(list) > 0 {
			data.Line, data.Column = list[0].Pos.Line, list[0].Pos.Column
			data.Message = list[0].Msg
		}
	}

	if src != nil {
		data.SnippetLines = strings.Split(string(src), "\n")
	}
	if data.Line < 1 || data.Line > len(data.SnippetLines) {
		data.Line = 0
	} else {
		data.CommonIndent = findCommonIndent(data.SnippetLines[data.Line-1 : data.Line])
	}
	data.MaxLineNumWidth = calculateMaxLineNumWidth(data.Line)
	data.Padding = strings.Repeat(" ", data.MaxLineNumWidth+1)

	var buf bytes.Buffer
	if err := errorTmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("Error formatting error: %v", err)
	}
	return buf.String()
}

// utils functions used in the text templates

func header(kind, stage string, maxLineNumWidth int, filename string, line, column int) string {
	endString := errorStyle.Sprint("error: ") + ruleStyle.Sprint(kind)
	if stage != "" {
		endString += ruleStyle.Sprintf(" [%s]", stage)
	}
	endString += "\n"

	if filename == "" {
		return endString
	}
	padding := strings.Repeat(" ", maxLineNumWidth)
	endString += lineStyle.Sprintf("%s--> ", padding)
	if line > 0 {
		endString += fileStyle.Sprintf("%s:%d:%d", filename, line, column)
	} else {
		endString += fileStyle.Sprint(filename)
	}
	return endString + "\n"
}

func codeSnippet(snippetLines []string, line int, maxLineNumWidth int, commonIndent string, padding string) string {
	endString := lineStyle.Sprintf("%s|\n", padding)
	text := strings.TrimPrefix(snippetLines[line-1], commonIndent)
	lineNum := fmt.Sprintf("%*d", maxLineNumWidth, line)
	endString += lineStyle.Sprintf("%s | ", lineNum) + noStyle.Sprintf("%s\n", text)
	return endString
}

func caretAndMessage(msg string, padding string, line int, column int, snippetLines []string, commonIndent string) string {
	commonIndentWidth := calculateVisualColumn(commonIndent, len(commonIndent)+1)

	start := calculateVisualColumn(snippetLines[line-1], column) - commonIndentWidth
	if start < 0 {
		start = 0
	}

	endString := lineStyle.Sprintf("%s| ", padding)
	endString += strings.Repeat(" ", start)
	endString += messageStyle.Sprint("^\n")
	endString += lineStyle.Sprintf("%s= ", padding) + messageStyle.Sprintf("%s\n", msg)
	return endString
}

func message(msg string) string {
	return messageStyle.Sprintf("%s\n", msg)
}

func calculateMaxLineNumWidth(endLine int) int {
	return len(fmt.Sprintf("%d", endLine))
}

// calculateVisualColumn calculates the visual column position
// in a string. taking into account tab characters.
func calculateVisualColumn(line string, column int) int {
	if column < 0 {
		return 0
	}
	visualColumn := 0
	for i, ch := range line {
		if i+1 == column {
			break
		}
		if ch == '\t' {
			visualColumn += tabWidth - (visualColumn % tabWidth)
		} else {
			visualColumn++
		}
	}
	return visualColumn
}

// findCommonIndent finds the common indent in the code snippet.
func findCommonIndent(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	// find first non-empty line's indent
	firstIndent := make([]rune, 0)
	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed != "" {
			firstIndent = []rune(line[:len(line)-len(trimmed)])
			break
		}
	}

	if len(firstIndent) == 0 {
		return ""
	}

	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed == "" {
			continue
		}

		currentIndent := []rune(line[:len(line)-len(trimmed)])
		firstIndent = commonPrefix(firstIndent, currentIndent)

		if len(firstIndent) == 0 {
			break
		}
	}

	return string(firstIndent)
}

// commonPrefix finds the common prefix of two strings.
func commonPrefix(a, b []rune) []rune {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:minLen]
}
