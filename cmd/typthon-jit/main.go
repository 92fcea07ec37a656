// Package main implements the typthon-jit demo driver.
//
// It builds one of a few sample functions with the jit API, compiles it in
// process and calls it, optionally dumping every compilation stage.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
	"github.com/GriffinCanCode/typthon-jit/pkg/jit"
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
)

const version = "0.2.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "run":
		os.Exit(run(os.Args[2:], false))
	case "dump":
		os.Exit(run(os.Args[2:], true))
	case "version":
		fmt.Printf("typthon-jit version %s (%s/%s, backends: %v)\n", version, runtime.GOOS, runtime.GOARCH, codegen.Architectures())
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`typthon-jit - build, compile and call functions in process

Usage:
    typthon-jit run [options] <function> [args...]   Compile and call a sample
    typthon-jit dump [options] <function>            Compile and dump every stage
    typthon-jit version                              Show version
    typthon-jit help                                 Show this help message

Functions:
    square <x>       x * x
    loop_test <n>    sum of i*i for i in [0, n)
    clamp <x> <hi>   x clamped to [0, hi], on int32

Options:
    -O <level>        Optimization level (0-3)
    -backend <name>   native or interp
    -config <file>    YAML options file
    -keep             Keep intermediate artifacts in a temp directory
    -S                Print the machine code listing
    -v                Verbose output`)
}

func run(args []string, dumpAll bool) int {
	fs := flag.NewFlagSet("typthon-jit", flag.ExitOnError)
	level := fs.Int("O", -1, "optimization level (0-3)")
	backend := fs.String("backend", "", "native or interp")
	config := fs.String("config", "", "YAML options file")
	keep := fs.Bool("keep", false, "keep intermediate artifacts")
	listing := fs.Bool("S", false, "print the machine code listing")
	verbose := fs.Bool("v", false, "verbose output")
	_ = fs.Parse(args)

	if *verbose {
		logger.InitDev()
	} else if err := logger.Init(logger.DefaultConfig()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "error: no function given")
		return 1
	}

	opts := jit.OptionsFromEnv()
	if *config != "" {
		var err error
		if opts, err = jit.LoadOptions(*config); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
	}
	if *level >= 0 {
		opts.OptimizationLevel = *level
	}
	if *backend != "" {
		opts.Backend = jit.Backend(*backend)
	}
	opts.KeepIntermediates = opts.KeepIntermediates || *keep
	if dumpAll {
		opts.DumpInitialIR = true
		opts.DumpInitialLoweredForm = true
		opts.DumpAllStages = true
	}

	name := fs.Arg(0)
	build, ok := samples[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "error: unknown function %q\n", name)
		return 1
	}
	ctx := jit.NewContext(jit.WithOptions(opts))
	if err := build(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	res, err := ctx.Compile()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer res.Close()

	if dir := res.ArtifactDir(); dir != "" {
		fmt.Fprintf(os.Stderr, "artifacts kept in %s\n", dir)
	}
	if *listing {
		if asm, err := res.Disassembly(name); err == nil {
			fmt.Print(asm)
		}
	}
	if dumpAll {
		return 0
	}

	fn, err := res.Func(name)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	callArgs := make([]any, 0, fs.NArg()-1)
	for _, a := range fs.Args()[1:] {
		v, err := strconv.ParseInt(a, 0, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: argument %q: %v\n", a, err)
			return 1
		}
		callArgs = append(callArgs, v)
	}
	out, err := fn.Call(callArgs...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	fmt.Println(formatCall(name, fs.Args()[1:], out))
	return 0
}

// formatCall renders a call and its result as name(a, b) = out.
func formatCall(name string, args []string, out any) string {
	return fmt.Sprintf("%s(%s) = %v", name, strings.Join(args, ", "), out)
}
