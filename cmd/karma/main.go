// Command karma is the CLI entry point: scaffold a new project, or
// load and run a compiled one.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/golang/glog"
	"github.com/mihirlaud/karma/loader"
	"github.com/mihirlaud/karma/vm"
	"github.com/urfave/cli/v2"
)

const mainStub = "node Main {\n\nfn main() -> int {\n\treturn 0;\n}\n\n}\n"

const graphStub = `{"Main": []}` + "\n"

func main() {
	// glog registers its flags on the default FlagSet, but urfave/cli
	// owns os.Args; parse an empty argument list so glog sees the set
	// as parsed instead of warning on every log line.
	_ = flag.CommandLine.Parse(nil)

	app := &cli.App{
		Name:  "karma",
		Usage: "scaffold, build, and run Karma node-graph programs",
		Commands: []*cli.Command{
			newCommand,
			buildCommand,
			runCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		glog.Errorf("karma: %v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var newCommand = &cli.Command{
	Name:      "new",
	Usage:     "scaffold a new project directory with a stub Main node",
	ArgsUsage: "<path>",
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return cli.Exit("usage: karma new <path>", 1)
		}
		srcDir := filepath.Join(path, "src")
		if err := os.MkdirAll(srcDir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(srcDir, "main.krm"), []byte(mainStub), 0o644); err != nil {
			return err
		}
		// Seed a manifest naming the Main node. No Main.k bytecode is
		// written, so the scaffold cannot be run until one is compiled.
		if err := os.WriteFile(filepath.Join(path, "graph.json"), []byte(graphStub), 0o644); err != nil {
			return err
		}
		fmt.Printf("created %s\n", path)
		return nil
	},
}

// buildCommand is a stub: no .krm-to-bytecode compiler is bundled with
// this tool, so "build" reports what it cannot do instead of shelling
// out.
var buildCommand = &cli.Command{
	Name:  "build",
	Usage: "compile src/main.krm into a comp/ bytecode directory (not bundled)",
	Action: func(c *cli.Context) error {
		return cli.Exit("karma build: no bytecode compiler is bundled with this tool; "+
			"populate comp/graph.json and comp/*.k by hand or with an external compiler, "+
			"then run \"karma run\"", 1)
	},
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "load a compiled program and execute its entry node",
	ArgsUsage: "[path]",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "debug", Usage: "step through execution interactively"},
	},
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			path = "comp"
		}

		v, err := loader.New(path, os.Stdout)
		if err != nil {
			return err
		}

		if c.Bool("debug") {
			return runDebug(v)
		}
		return v.Execute()
	},
}

// runDebug is a single-step REPL over the entry node: "n"/"next" steps
// one instruction, "r"/"run" free-runs to completion, "b <pc>" toggles
// a breakpoint, and "state" dumps the machine's full internal state
// via go-spew for cases where the accessor methods aren't enough.
func runDebug(v *loader.VirtualMachine) error {
	m := v.Graph.Entry()
	if m == nil {
		return fmt.Errorf("karma run --debug: graph has no nodes")
	}

	fmt.Println(v.Graph.String())
	fmt.Println("commands: n(ext), r(un), b(reak) <pc>, state, program, q(uit)")

	reader := bufio.NewReader(os.Stdin)
	breakpoints := make(map[uint32]struct{})
	running := false

	for {
		if !running {
			fmt.Printf("pc=%d -> ", m.PC())
			line, err := reader.ReadString('\n')
			if err != nil {
				return nil
			}
			line = strings.TrimSpace(strings.ToLower(line))

			switch {
			case line == "n" || line == "next":
				if haltOrPrint(m) {
					return nil
				}
			case line == "r" || line == "run":
				running = true
			case line == "program":
				for _, l := range m.Disassemble() {
					fmt.Println(l)
				}
			case line == "state":
				spew.Dump(m)
			case line == "q" || line == "quit":
				return nil
			case strings.HasPrefix(line, "b"):
				toggleBreakpoint(breakpoints, line)
			default:
				fmt.Println("unrecognized command")
			}
			continue
		}

		if _, ok := breakpoints[m.PC()]; ok {
			fmt.Printf("breakpoint at pc=%d\n", m.PC())
			running = false
			continue
		}
		if haltOrPrint(m) {
			return nil
		}
	}
}

func haltOrPrint(m *vm.NodeMachine) bool {
	halted, err := m.StepDebug()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return true
	}
	return halted
}

func toggleBreakpoint(breakpoints map[uint32]struct{}, line string) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		fmt.Println("usage: b <pc>")
		return
	}
	pc, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		fmt.Println("unknown pc:", err)
		return
	}
	if _, ok := breakpoints[uint32(pc)]; ok {
		delete(breakpoints, uint32(pc))
	} else {
		breakpoints[uint32(pc)] = struct{}{}
	}
}
