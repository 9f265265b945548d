// cmd/quill/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	pkgerrors "github.com/pkg/errors"

	"quill/internal/compiler"
	"quill/internal/errors"
	"quill/internal/ir"
	"quill/internal/lexer"
	"quill/internal/parser"
	"quill/internal/resolver"
	"quill/internal/typecheck"
	"quill/internal/types"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		showUsage()
		return 2
	}
	switch args[0] {
	case "build":
		return buildCommand(args[1:])
	case "dump":
		return dumpCommand(args[1:])
	case "version", "--version", "-v":
		fmt.Printf("quill %s\n", version)
		return 0
	case "help", "--help", "-h":
		showUsage()
		return 0
	}
	fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
	showUsage()
	return 2
}

func showUsage() {
	fmt.Println(`quill - a compiler for the quill language

Usage:
  quill build [-o output] <file.ql>   compile to a two-address module listing
  quill dump [-three] <file.ql>       print the lowered module to stdout
  quill version                       show version
  quill help                          show this help`)
}

// compile runs the front end and, when it is clean, the 3AC lowering.
func compile(path string) (*ir.Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "read source")
	}
	rep := errors.NewReporter(path, string(src), os.Stderr)
	scanner := lexer.NewScanner(string(src), rep)
	tokens := scanner.ScanTokens()
	reg := types.NewRegistry()
	p := parser.NewParser(tokens, reg, rep)
	mod := p.ParseModule()
	resolver.Resolve(mod, rep)
	typecheck.Check(mod, reg, rep)
	if rep.Count > 0 {
		return nil, fmt.Errorf("%d error(s)", rep.Count)
	}
	return compiler.Compile(mod, reg), nil
}

func buildCommand(args []string) int {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	out := fs.String("o", "", "output path (default: source with a .2ac extension)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "build: expected exactly one source file")
		return 2
	}
	path := fs.Arg(0)
	m3, err := compile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build %s: %v\n", path, err)
		return 1
	}
	m2 := compiler.ToTwoAddr(m3)

	target := *out
	if target == "" {
		target = strings.TrimSuffix(path, ".ql") + ".2ac"
	}
	f, err := os.Create(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build %s: %v\n", path, pkgerrors.Wrap(err, "create output"))
		return 1
	}
	m2.Dump(f)
	info, _ := f.Stat()
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "build %s: %v\n", path, pkgerrors.Wrap(err, "write output"))
		return 1
	}
	fmt.Printf("wrote %s (%s)\n", target, humanize.Bytes(uint64(info.Size())))
	return 0
}

func dumpCommand(args []string) int {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	three := fs.Bool("three", false, "dump the three-address form instead of two-address")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "dump: expected exactly one source file")
		return 2
	}
	m, err := compile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "dump %s: %v\n", fs.Arg(0), err)
		return 1
	}
	if !*three {
		m = compiler.ToTwoAddr(m)
	}
	m.Dump(os.Stdout)
	return 0
}
