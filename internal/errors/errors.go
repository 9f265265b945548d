// internal/errors/errors.go
package errors

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/mattn/go-isatty"
)

// Kind classifies a compile error
type Kind string

const (
	IOError      Kind = "IOError"
	LexError     Kind = "LexError"
	ParseError   Kind = "ParseError"
	ResolveError Kind = "ResolveError"
	TypeError    Kind = "TypeError"
)

// Diag is a single diagnostic with source location information
type Diag struct {
	Kind    Kind
	Message string
	File    string
	Line    int
	Column  int
	Source  string // the source line where the error occurred
}

// Error implements the error interface
func (d *Diag) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s\n", d.Kind, d.Message))
	if d.File != "" {
		sb.WriteString(fmt.Sprintf("  at %s:%d:%d\n", d.File, d.Line, d.Column))
		if d.Source != "" {
			sb.WriteString(fmt.Sprintf("\n  %d | %s\n", d.Line, d.Source))
			sb.WriteString("  " + strings.Repeat(" ", len(fmt.Sprintf("%d | ", d.Line))))
			if d.Column > 0 {
				sb.WriteString(strings.Repeat(" ", d.Column-1))
			}
			sb.WriteString("^\n")
		}
	}
	return sb.String()
}

// Reporter is the single sink every pipeline stage reports through. It owns
// the error counter that gates lowering: once Count is non-zero the front
// end keeps going but no code is generated.
type Reporter struct {
	File  string
	Count int

	out   io.Writer
	color bool
	src   string
	lines []int // byte offset of each line start
}

func NewReporter(file, src string, out io.Writer) *Reporter {
	r := &Reporter{File: file, out: out, src: src}
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		r.color = true
	}
	r.lines = append(r.lines, 0)
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			r.lines = append(r.lines, i+1)
		}
	}
	return r
}

// LineCol converts a byte offset into a 1-based line and column.
func (r *Reporter) LineCol(pos int) (line, col int) {
	i, found := slices.BinarySearch(r.lines, pos)
	if !found {
		i--
	}
	return i + 1, pos - r.lines[i] + 1
}

// SourceLine returns the text of the line containing pos, without the newline.
func (r *Reporter) SourceLine(pos int) string {
	i, found := slices.BinarySearch(r.lines, pos)
	if !found {
		i--
	}
	end := len(r.src)
	if i+1 < len(r.lines) {
		end = r.lines[i+1] - 1
	}
	return r.src[r.lines[i]:end]
}

// Errorf reports one diagnostic at the given byte offset and bumps the counter.
func (r *Reporter) Errorf(kind Kind, pos int, format string, args ...interface{}) {
	r.Count++
	if r.out == nil {
		return
	}
	line, col := 0, 0
	source := ""
	if pos >= 0 && pos <= len(r.src) {
		line, col = r.LineCol(pos)
		source = r.SourceLine(pos)
	}
	d := &Diag{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		File:    r.File,
		Line:    line,
		Column:  col,
		Source:  source,
	}
	msg := d.Error()
	if r.color {
		msg = strings.Replace(msg, string(kind), "\x1b[31m"+string(kind)+"\x1b[0m", 1)
	}
	fmt.Fprint(r.out, msg)
}
