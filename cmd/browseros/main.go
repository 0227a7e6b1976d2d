package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], environment{
		lookup: os.LookupEnv,
		goos:   runtime.GOOS,
		stdout: os.Stdout,
		stderr: os.Stderr,
	})
	stop()
	os.Exit(code)
}

// environment is everything the CLI reads from the outside world.
type environment struct {
	lookup func(string) (string, bool)
	goos   string
	stdout io.Writer
	stderr io.Writer
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// errReported marks a failure whose diagnostic was already written.
var errReported = errors.New("reported")

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, env environment) int {
	root, a := buildRoot(env)
	defer a.close()
	root.SetArgs(args)
	root.SetOut(env.stdout)
	root.SetErr(env.stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			_, _ = fmt.Fprintf(env.stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// buildRoot creates the root command with all subcommands attached.
func buildRoot(env environment) (*cobra.Command, *app) {
	globalFlags := &GlobalFlags{}
	a := &app{env: env, flags: globalFlags}

	root := &cobra.Command{
		Use:           "browseros",
		Short:         "Keep BrowserOS running and talk to it",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "optional YAML config file")

	root.AddCommand(
		createEnsureCommand(a),
		createStatusCommand(a),
		createCallCommand(a),
		createCookiesCommand(a),
		createServeCommand(a),
	)
	return root, a
}
