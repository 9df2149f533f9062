// lazydb inspects and edits lazydb databases from the command line. A
// database argument is either a working directory or a compiled archive
// (".ldb"); archives are unpacked for the duration of the command and
// compiled back afterwards.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/andreyvit/lazydb"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	name    string
	args    string
	minArgs int
	maxArgs int
	run     func(env *env, args []string) error
}

var commands = []*command{
	{"init", "<db>", 1, 1, runInit},
	{"compile", "<dir>", 1, 1, runCompile},
	{"decompile", "<archive>", 1, 1, runDecompile},
	{"ls", "<db> [path]", 1, 2, runList},
	{"get", "<db> <path>", 2, 2, runGet},
	{"set", "<db> <path> <kind> [value...]", 3, -1, runSet},
	{"rm", "<db> <path>", 2, 2, runRemove},
	{"dump", "<db>", 1, 1, runDump},
	{"export", "<db>", 1, 1, runExport},
}

type env struct {
	stdout io.Writer
	opt    lazydb.Options
	format string
}

func run(args []string, stdout, stderr io.Writer) error {
	var verbose bool
	var compression, onError, format string

	flagSet := pflag.NewFlagSet("lazydb", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(true)
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log debug messages")
	flagSet.StringVar(&compression, "compression", "lz4", "archive compression when compiling: lz4 or zstd")
	flagSet.StringVar(&onError, "on-error", "abort", "what to do when a single file fails while packing or unpacking: abort, skip or retry")
	flagSet.StringVarP(&format, "format", "f", "yaml", "export format: yaml or json")
	flagSet.Usage = func() { printHelp(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	c, err := lazydb.ParseCompression(compression)
	if err != nil {
		return err
	}
	handler, err := parseErrorHandler(onError, logger)
	if err != nil {
		return err
	}
	if format != "yaml" && format != "json" {
		return fmt.Errorf("unknown export format %q", format)
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return errors.New("missing command")
	}
	cmd := findCommand(rest[0])
	if cmd == nil {
		return fmt.Errorf("unknown command %q", rest[0])
	}
	cmdArgs := rest[1:]
	if len(cmdArgs) < cmd.minArgs || (cmd.maxArgs >= 0 && len(cmdArgs) > cmd.maxArgs) {
		return fmt.Errorf("usage: lazydb %s %s", cmd.name, cmd.args)
	}

	e := &env{
		stdout: stdout,
		opt:    lazydb.Options{Logger: logger, Compression: c, ErrorHandler: handler},
		format: format,
	}
	return cmd.run(e, cmdArgs)
}

func findCommand(name string) *command {
	for _, c := range commands {
		if c.name == name {
			return c
		}
	}
	return nil
}

func parseErrorHandler(name string, logger *slog.Logger) (lazydb.ErrorHandler, error) {
	switch name {
	case "abort":
		return lazydb.AbortOnError, nil
	case "skip":
		return lazydb.SkipAndLog(logger), nil
	case "retry":
		return lazydb.RetryThen(3, nil), nil
	default:
		return nil, fmt.Errorf("unknown --on-error policy %q", name)
	}
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "lazydb: inspect and edit lazily-loaded typed value stores.\n\nUsage:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  lazydb %s %s\n", c.name, c.args)
	}
	fmt.Fprintf(w, "\nKinds for set: %s, bool, array:<numeric kind>.\n\nFlags:\n%s", strings.Join(kindNames(), ", "), flagSet.FlagUsages())
}

func kindNames() []string {
	var names []string
	for k := lazydb.KindVoid; k <= lazydb.KindArray; k++ {
		names = append(names, k.String())
	}
	return names
}

func isArchive(path string) bool {
	return strings.HasSuffix(filepath.Clean(path), lazydb.ArchiveExt)
}

// withDB opens a working directory or an archive for the duration of fn.
func (e *env) withDB(path string, fn func(db *lazydb.DB) error) error {
	if isArchive(path) {
		return lazydb.WithArchive(path, e.opt, fn)
	}
	return lazydb.With(path, e.opt, fn)
}

func runInit(e *env, args []string) error {
	if isArchive(args[0]) {
		db, err := lazydb.InitArchive(args[0], e.opt)
		if err != nil {
			return err
		}
		return db.Close()
	}
	_, err := lazydb.Init(args[0], e.opt)
	return err
}

func runCompile(e *env, args []string) error {
	db, err := lazydb.Load(args[0], e.opt)
	if err != nil {
		return err
	}
	archive, err := db.Compile()
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, archive)
	return db.Close()
}

func runDecompile(e *env, args []string) error {
	dir, err := lazydb.Decompile(args[0], e.opt)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, dir)
	return nil
}

func runList(e *env, args []string) error {
	return e.withDB(args[0], func(db *lazydb.DB) error {
		c, err := db.Container()
		if err != nil {
			return err
		}
		if len(args) > 1 {
			keys, err := lazydb.SplitPath(args[1])
			if err != nil {
				return err
			}
			if c, err = c.Walk(keys...); err != nil {
				return err
			}
		}
		entries, err := c.List()
		if err != nil {
			return err
		}
		for _, ent := range entries {
			if ent.Container {
				fmt.Fprintf(e.stdout, "%s/\n", ent.Key)
				continue
			}
			kind := "?"
			if d, err := c.ReadData(ent.Key); err == nil {
				kind = d.Kind.String()
				d.Close()
			}
			fmt.Fprintf(e.stdout, "%s\t%s\t%d\n", ent.Key, kind, ent.Size)
		}
		return nil
	})
}

func runGet(e *env, args []string) error {
	return e.withDB(args[0], func(db *lazydb.DB) error {
		d, err := db.ResolveData(args[1])
		if err != nil {
			return err
		}
		v, err := d.Collect()
		if err != nil {
			return err
		}
		if s, ok := v.(string); ok {
			fmt.Fprintln(e.stdout, s)
		} else {
			fmt.Fprintln(e.stdout, lazydb.FormatValue(v))
		}
		return nil
	})
}

func runSet(e *env, args []string) error {
	return e.withDB(args[0], func(db *lazydb.DB) error {
		c, err := db.Container()
		if err != nil {
			return err
		}
		write, err := parseValue(args[2], args[3:])
		if err != nil {
			return err
		}
		w, err := c.ResolveWriter(args[1])
		if err != nil {
			return err
		}
		return write(w)
	})
}

func runRemove(e *env, args []string) error {
	return e.withDB(args[0], func(db *lazydb.DB) error {
		c, err := db.Container()
		if err != nil {
			return err
		}
		keys, err := lazydb.SplitPath(args[1])
		if err != nil {
			return err
		}
		n := len(keys)
		parent, err := c.Walk(keys[:n-1]...)
		if err != nil {
			return err
		}
		parent.Remove(keys[n-1])
		return nil
	})
}

func runDump(e *env, args []string) error {
	return e.withDB(args[0], func(db *lazydb.DB) error {
		c, err := db.Container()
		if err != nil {
			return err
		}
		s, err := c.Dump(lazydb.DumpAll)
		if err != nil {
			return err
		}
		_, err = io.WriteString(e.stdout, s)
		return err
	})
}
