package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/zx06/plurcast/internal/app"
	"github.com/zx06/plurcast/internal/errors"
	"github.com/zx06/plurcast/internal/output"
)

func main() {
	exit := run()
	os.Exit(exit)
}

// run is the main entry point
func run() int {
	stop := clearOnSignal()
	defer stop()
	return runWith(os.Args[1:], os.Stdout, os.Stderr)
}

// runWith executes the CLI with explicit arguments and output streams.
func runWith(args []string, stdout, stderr io.Writer) (exit int) {
	// Master passwords held by any opened session are wiped on every exit path.
	defer sessions.clear()
	defer func() {
		if r := recover(); r != nil {
			sessions.clear()
			panic(r)
		}
	}()

	stdinReader = nil
	a := app.New(version, commit, date)
	w := output.New(stdout, stderr)

	root := NewRootCommand(&w)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(NewSetCommand(&w))
	root.AddCommand(NewListCommand(&w))
	root.AddCommand(NewUseCommand(&w))
	root.AddCommand(NewDeleteCommand(&w))
	root.AddCommand(NewTestCommand(&w))
	root.AddCommand(NewMigrateCommand(&w))
	root.AddCommand(NewAuditCommand(&w))
	root.AddCommand(NewMCPCommand())
	root.AddCommand(NewSpecCommand(&a, &w))
	root.AddCommand(NewVersionCommand(&a, &w))

	if err := root.Execute(); err != nil {
		if re, ok := asReported(err); ok {
			return int(errors.ExitCodeFor(re.xe.Code))
		}
		xe := normalizeErr(err)
		format := resolveFormatForError(GlobalConfig.FormatStr)
		_ = w.WriteError(format, xe)
		return int(errors.ExitCodeFor(xe.Code))
	}
	return int(errors.ExitOK)
}

// clearOnSignal wipes cached master passwords before exiting on SIGINT/SIGTERM.
func clearOnSignal() (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			sessions.clear()
			os.Exit(130)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
