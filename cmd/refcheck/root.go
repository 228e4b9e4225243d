// Package refcheck contains the Cobra command tree for the refcheck CLI.
package refcheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/skaphos/refcheck/internal/config"
	"github.com/skaphos/refcheck/internal/gitx"
	"github.com/skaphos/refcheck/internal/vcs"
)

var (
	// Global flags
	flagVerbose int
	flagQuiet   bool
	flagConfig  string
	flagNoColor bool
	flagDir     string
	// exitCode tracks the highest severity observed during a command run.
	exitCode int
	// isTerminalFD is overridable in tests.
	isTerminalFD = term.IsTerminal
	// exitFunc is overridable in tests.
	exitFunc = os.Exit
	// newAdapter is overridable in tests.
	newAdapter = vcs.NewAdapterForBackend
	// repositoryRoot is overridable in tests.
	repositoryRoot = gitTopLevel
)

var rootCmd = &cobra.Command{
	Use:   "refcheck",
	Short: "Report local git refs that no remote has",
	Long: "refcheck lists local branches, tags and stashes that are not present on the repository's " +
		"upstream or origin remote, and suggests (never runs) the commands that would delete them.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// `NO_COLOR` is a standard opt-out and should behave like --no-color.
		if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
			flagNoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase output verbosity (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "override config file path")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&flagDir, "directory", "C", "", "run as if started in this directory")
}

// Execute runs the root command.
func Execute() {
	exitFunc(ExecuteWithExitCode())
}

// ExecuteWithExitCode runs the root command and returns a shell-friendly exit code.
func ExecuteWithExitCode() int {
	exitCode = 0
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(rootCmd.ErrOrStderr(), "error:", err)
		return 3
	}
	return exitCode
}

func raiseExitCode(code int) {
	// Keep the highest severity: 0 success, 1 warning, 2 error, 3 fatal.
	if code > exitCode {
		exitCode = code
	}
}

func infof(cmd *cobra.Command, format string, args ...any) {
	if flagQuiet {
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

func debugf(cmd *cobra.Command, format string, args ...any) {
	if flagQuiet || flagVerbose <= 0 {
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

// logOutputWriteFailure records non-fatal output write failures. Output is
// often piped into tools that close early, such as `head`.
func logOutputWriteFailure(cmd *cobra.Command, context string, err error) {
	if err == nil {
		return
	}
	debugf(cmd, "ignored output write failure (%s): %v", context, err)
}

func shouldUseColorOutput(cmd *cobra.Command, tabular bool) bool {
	if flagNoColor || !tabular {
		return false
	}
	file, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return isTerminalFD(int(file.Fd()))
}

// workDir returns the directory commands operate on: -C when given,
// otherwise the process working directory.
func workDir() (string, error) {
	if strings.TrimSpace(flagDir) != "" {
		return filepath.Abs(flagDir)
	}
	return os.Getwd()
}

// loadConfig resolves and loads the runtime config. An explicit --config
// must exist; otherwise a missing file yields defaults.
func loadConfig(cmd *cobra.Command, cwd string) (*config.Config, config.Location, error) {
	loc, err := config.Locate(flagConfig, cwd, repositoryRoot(cmd.Context(), cwd))
	if err != nil {
		return nil, config.Location{}, err
	}
	var cfg *config.Config
	if flagConfig != "" {
		cfg, err = config.Load(loc.Path)
	} else {
		cfg, err = config.LoadOrDefault(loc.Path)
	}
	if err != nil {
		return nil, config.Location{}, err
	}
	debugf(cmd, "using config %s (%s)", loc.Path, loc.Source)
	return cfg, loc, nil
}

// gitTopLevel returns the repository top-level containing dir, or "" when
// dir is not inside a repository.
func gitTopLevel(ctx context.Context, dir string) string {
	if ctx == nil {
		ctx = context.Background()
	}
	runner := &gitx.GitRunner{}
	if ok, err := gitx.IsRepo(ctx, runner, dir); err != nil || !ok {
		return ""
	}
	top, err := gitx.TopLevel(ctx, runner, dir)
	if err != nil {
		return ""
	}
	return top
}

// adapterFor builds the backend adapter, tracing git invocations when
// trace is non-nil.
func adapterFor(backend string, trace func(format string, args ...any)) (vcs.Adapter, error) {
	var runner gitx.Runner = &gitx.GitRunner{}
	if trace != nil {
		runner = &gitx.TracingRunner{Next: runner, Trace: trace}
	}
	return newAdapter(backend, runner)
}
