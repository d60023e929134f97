// Command lumen is the standalone CLI (spec §6): run a script file,
// execute a one-line command, or drop into an interactive REPL, all
// hosted on the embedding package's Runtime.
//
// Flag surface and exit codes are grounded on the teacher's own
// yaegi binary (cmd/yaegi/run.go) reshaped to spec §6: -c runs a
// literal command string, -u forces unbuffered stdout, -v/--version
// and -h/--help exit 0, a bad invocation exits 2, an unhandled script
// panic exits 1.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/peterh/liner"

	"github.com/lumen-lang/lumen/internal/config"
	"github.com/lumen-lang/lumen/internal/frontend"
	"github.com/lumen-lang/lumen/internal/object"
	"github.com/lumen-lang/lumen/lumen"
)

const version = "lumen 0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

const usageText = `usage: lumen [-c cmd] [-u] [-v] [-h] [file]

  -c cmd        execute cmd as a literal command string
  -u            force unbuffered stdout
  -v, --version print the version and exit
  -h, --help    print this message and exit
  -config path  path to an override config file

With no file and no -c, lumen starts an interactive REPL.
`

func run(argv []string) int {
	fs := flag.NewFlagSet("lumen", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	var (
		cmdStr     string
		unbuffered bool
		showVer    bool
		showHelp   bool
		cfgPath    string
	)
	fs.StringVar(&cmdStr, "c", "", "execute the given command string instead of a file")
	fs.BoolVar(&unbuffered, "u", false, "force unbuffered stdout")
	fs.BoolVar(&showVer, "v", false, "print version and exit")
	fs.BoolVar(&showVer, "version", false, "print version and exit")
	// Registered explicitly (rather than left to the flag package's own
	// -h handling) so a help request exits 0 with our own usage text
	// instead of falling through to the generic parse-error branch below,
	// which exits 2 and (with fs.SetOutput(io.Discard) above) prints only
	// the bare parse error, no usage text.
	fs.BoolVar(&showHelp, "h", false, "print usage and exit")
	fs.BoolVar(&showHelp, "help", false, "print usage and exit")
	fs.StringVar(&cfgPath, "config", "", "path to an override config file")
	if err := fs.Parse(argv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if showHelp {
		fmt.Print(usageText)
		return 0
	}

	if showVer {
		fmt.Println(version)
		return 0
	}

	cfg := config.Load(cfgPath)
	if unbuffered {
		cfg.Unbuffered = true
	}

	rt := lumen.New()
	if err := rt.Initialize(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "lumen: initialize:", err)
		return 1
	}
	defer rt.Shutdown()

	if cfg.StartupScript != "" {
		if code := runStartupScript(rt, cfg.StartupScript); code != 0 {
			return code
		}
	}

	switch {
	case cmdStr != "":
		return runSource(rt, "<command>", cmdStr, cfg.Unbuffered)
	case fs.NArg() > 0:
		path := fs.Arg(0)
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "lumen:", err)
			return 1
		}
		return runSource(rt, path, string(data), cfg.Unbuffered)
	default:
		return runREPL(rt)
	}
}

// runStartupScript sources cfg.StartupScript (LUMEN_STARTUP) against the
// runtime's shared globals before the requested file, -c command, or
// REPL runs, so declarations it makes are visible to all three the same
// way a REPL's own prior lines are.
func runStartupScript(rt *lumen.Runtime, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lumen: startup script:", err)
		return 1
	}
	return runSource(rt, path, string(data), false)
}

func runSource(rt *lumen.Runtime, filename, src string, unbuffered bool) int {
	prog, err := frontend.Parse(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lumen:", err)
		return 1
	}
	code, err := rt.Compile(filename, prog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lumen:", err)
		return 1
	}
	res, err := rt.Eval(context.Background(), code, rt.Globals())
	if err != nil {
		reportFailure(rt, err)
		return 1
	}
	if unbuffered {
		os.Stdout.Sync()
	}
	_ = res
	return 0
}

// runREPL hosts an interactive session with history and line editing via
// peterh/liner, evaluating one top-level statement-block at a time
// against the runtime's shared global namespace so declarations persist
// across lines the way yaegi's own REPL keeps one running interpreter
// state.
func runREPL(rt *lumen.Runtime) int {
	fmt.Println(version)
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for {
		text, err := line.Prompt("lumen> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				break
			}
			fmt.Fprintln(os.Stderr, "lumen:", err)
			continue
		}
		if text == "" {
			continue
		}
		line.AppendHistory(text)

		prog, err := frontend.Parse(text)
		if err != nil {
			fmt.Fprintln(os.Stderr, "lumen:", err)
			continue
		}
		code, err := rt.Compile("<repl>", prog)
		if err != nil {
			fmt.Fprintln(os.Stderr, "lumen:", err)
			continue
		}
		res, err := rt.Eval(context.Background(), code, rt.Globals())
		if err != nil {
			reportFailure(rt, err)
			continue
		}
		if res.Value != nil && res.Value != object.Nil {
			fmt.Fprintln(out, res.Value.Repr())
			out.Flush()
		}
	}
	return 0
}

func reportFailure(rt *lumen.Runtime, err error) {
	if pr := rt.GetLastError(); pr != nil && pr.Value != nil {
		fmt.Fprintln(os.Stderr, "lumen: unhandled panic:", pr.Value.Repr())
		rt.DiscardLastPanic()
		return
	}
	fmt.Fprintln(os.Stderr, "lumen:", err)
}
