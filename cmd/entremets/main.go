// Command entremets is the CLI entry point of spec.md §6: it loads a
// spec fixture, explores its reachable state space, and reports either
// success, a property violation with a counter-example trace, or a
// fatal error — exit codes 0, 1, and 2 respectively.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/entremets/entremets/internal/errs"
	"github.com/entremets/entremets/internal/explorer"
	"github.com/entremets/entremets/internal/obslog"
	"github.com/entremets/entremets/internal/specast"
	"github.com/entremets/entremets/internal/trace"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var maxStates int
	var debug bool

	root := &cobra.Command{
		Use:   "entremets <fixture.json>",
		Short: "Bounded model checker for concurrent SQL workloads",
		Args:  cobra.ExactArgs(1),
	}
	root.Flags().IntVar(&maxStates, "max-states", explorer.DefaultMaxStates, "maximum number of distinct states to explore before giving up")
	root.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.SetArgs(args)

	exitCode := 0
	root.RunE = func(cmd *cobra.Command, cliArgs []string) error {
		logger := obslog.New(debug)
		defer logger.Sync()

		data, err := os.ReadFile(cliArgs[0])
		if err != nil {
			exitCode = 2
			return fmt.Errorf("reading fixture: %w", err)
		}

		spec, err := specast.DecodeJSON(data)
		if err != nil {
			exitCode = 2
			return fmt.Errorf("decoding fixture: %w", err)
		}

		logger.Info("starting exploration",
			zap.Int("processes", len(spec.Processes)),
			zap.Int("properties", len(spec.Properties)),
			zap.Int("max_states", maxStates),
		)

		violation, states, err := explorer.Explore(spec, explorer.Options{MaxStates: maxStates, Logger: logger})
		if err != nil {
			if errors.Is(err, errs.ErrMaxStatesExceeded) {
				exitCode = 2
				return fmt.Errorf("exploration incomplete: %w", err)
			}
			exitCode = 2
			return fmt.Errorf("exploration failed: %w", err)
		}

		if violation == nil {
			fmt.Println("No counter example found")
			fmt.Printf("States explored: %d\n", states)
			exitCode = 0
			return nil
		}

		fmt.Println(trace.Render(violation))
		fmt.Printf("States explored: %d\n", states)
		exitCode = 1
		return nil
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "entremets:", err)
		if exitCode == 0 {
			exitCode = 2
		}
	}
	return exitCode
}
