// Command zscript runs zscript programs from files, inline expressions or an
// interactive prompt.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/xirelogy/go-zscript"
)

const appName = "zscript"

var log = commonlog.GetLogger("zscript.cli")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		w := fs.Output()
		fmt.Fprintf(w, `Usage:
  %s [flags] <file.zs>     Run a script.
  %s [flags] -e <source>   Evaluate inline source and print the result.
  %s [flags]               Start the REPL.

Flags:
`, appName, appName, appName)
		fs.PrintDefaults()
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = usage(fs)
	eval := fs.String("e", "", "evaluate `source` instead of a file")
	configPath := fs.String("config", "", "load engine settings from a .toml or .yaml `file`")
	verbosity := fs.Int("v", -1, "log verbosity (overrides the config file)")
	logPath := fs.String("log", "", "write logs to `file` instead of stderr")
	disasm := fs.Bool("disasm", false, "print bytecode instead of running")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	cfg := zscript.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = zscript.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", appName, err)
			return 1
		}
	}
	if *verbosity >= 0 {
		cfg.Log.Verbosity = *verbosity
	}
	if *logPath != "" {
		cfg.Log.Path = *logPath
	}
	configureLogging(cfg.Log)

	engine, err := zscript.NewEngine(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 1
	}
	engine.SetOutput(stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case *eval != "":
		return runSource(ctx, engine, "inline", *eval, *disasm, true, stdout, stderr)
	case fs.NArg() > 0:
		file := fs.Arg(0)
		src, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(stderr, "%s: cannot read %s: %v\n", appName, file, err)
			return 1
		}
		return runSource(ctx, engine, file, string(src), *disasm, false, stdout, stderr)
	}
	stop()
	return repl(engine, stdout, stderr)
}

func configureLogging(cfg zscript.LogConfig) {
	var path *string
	if cfg.Path != "" {
		path = &cfg.Path
	}
	commonlog.Configure(cfg.Verbosity, path)
}

// runSource compiles src and either disassembles or runs it. When echo is set
// a non-null result is printed.
func runSource(ctx context.Context, engine *zscript.Engine, name, src string, disasm, echo bool, stdout, stderr io.Writer) int {
	prog, err := engine.Compile(name, src)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if disasm {
		if err := prog.Disassemble(stdout); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		return 0
	}
	log.Debugf("running %s on engine %s", name, engine.ID())
	res, err := engine.Run(ctx, prog)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if echo {
		return printResult(engine, res, stdout, stderr)
	}
	return 0
}

func printResult(engine *zscript.Engine, v zscript.Value, stdout, stderr io.Writer) int {
	if v.IsNull() {
		return 0
	}
	s, err := engine.ToString(v)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	fmt.Fprintln(stdout, s)
	return 0
}
