// SPDX-License-Identifier: MIT
package refcheck

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaphos/refcheck/internal/config"
	"github.com/skaphos/refcheck/internal/engine"
	"github.com/skaphos/refcheck/internal/model"
	"github.com/skaphos/refcheck/internal/report"
	"github.com/skaphos/refcheck/internal/strutil"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report local-only branches, tags and stashes",
	Long: "Compares local refs against the upstream and origin remotes. A ref is local-only when no " +
		"queried remote has it. Suggested cleanup commands are printed, never executed.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		debugf(cmd, "starting check")
		cwd, err := workDir()
		if err != nil {
			return err
		}
		cfg, _, err := loadConfig(cmd, cwd)
		if err != nil {
			return err
		}
		format, err := report.ParseFormat(getStringFlag(cmd, "format"))
		if err != nil {
			return err
		}
		opts, err := checkOptionsFromFlags(cmd, cfg)
		if err != nil {
			return err
		}
		opts.Dir = cwd

		progress := newProgressLine(cmd)
		var trace func(format string, args ...any)
		if getBoolFlag(cmd, "debug") {
			trace = func(format string, args ...any) {
				progress.clear()
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
			}
		}
		adapter, err := adapterFor(cfg.Backend, trace)
		if err != nil {
			return err
		}
		debugf(cmd, "using %s backend", adapter.Name())
		opts.Tracef = trace
		opts.OnProgress = progress.update

		rep, err := engine.New(cfg, adapter).Check(cmd.Context(), opts)
		progress.clear()
		if err != nil {
			return err
		}

		logOutputWriteFailure(cmd, "check "+string(format), report.Render(cmd.OutOrStdout(), rep, report.Options{
			Format:       format,
			NoHeaders:    getBoolFlag(cmd, "no-headers"),
			Color:        shouldUseColorOutput(cmd, format.Tabular()),
			SubjectWidth: subjectWidth(cmd),
		}))

		found := rep.LocalOnlyCount()
		if found > 0 || len(rep.Warnings) > 0 {
			raiseExitCode(1)
		}
		infof(cmd, "check completed: %d local-only refs, %d warnings", found, len(rep.Warnings))
		return nil
	},
}

func init() {
	checkCmd.Flags().String("categories", "", "comma-separated categories to check: branches, tags, stashes (default all)")
	checkCmd.Flags().Bool("skip-tags", false, "do not check tags")
	checkCmd.Flags().String("mode", "", "remote snapshot mode: exact (query remotes) or heuristic (local history only)")
	checkCmd.Flags().String("remote", "", "comma-separated candidate remotes in priority order (default upstream,origin)")
	checkCmd.Flags().Int("limit", 0, "evaluate at most N refs per category (0 means no limit)")
	checkCmd.Flags().Bool("fetch", false, "fetch each remote before checking")
	checkCmd.Flags().String("on-unreachable", "", "what to do with a remote that cannot be queried: skip, heuristic, or abort")
	checkCmd.Flags().Int("retries", 0, "retries for each remote query after the first attempt")
	checkCmd.Flags().String("backend", "", "git access backend: git or gogit")
	checkCmd.Flags().Bool("debug", false, "trace git commands and snapshot decisions on stderr")
	addFormatFlag(checkCmd)
	addNoHeadersFlag(checkCmd)

	rootCmd.AddCommand(checkCmd)
}

// checkOptionsFromFlags overlays explicitly set flags on cfg and resolves
// the engine options. cfg is updated in place and validated.
func checkOptionsFromFlags(cmd *cobra.Command, cfg *config.Config) (engine.CheckOptions, error) {
	flags := cmd.Flags()
	if flags.Changed("categories") {
		cfg.Categories = strutil.SplitCSV(getStringFlag(cmd, "categories"))
	}
	if flags.Changed("mode") {
		cfg.Mode = getStringFlag(cmd, "mode")
	}
	if flags.Changed("remote") {
		cfg.Remotes = strutil.SplitCSV(getStringFlag(cmd, "remote"))
		if len(cfg.Remotes) == 0 {
			return engine.CheckOptions{}, errors.New("--remote needs at least one remote name")
		}
	}
	if flags.Changed("on-unreachable") {
		cfg.OnUnreachable = getStringFlag(cmd, "on-unreachable")
	}
	if flags.Changed("retries") {
		cfg.Retries = getIntFlag(cmd, "retries")
	}
	if flags.Changed("backend") {
		cfg.Backend = getStringFlag(cmd, "backend")
	}
	if err := cfg.Validate(); err != nil {
		return engine.CheckOptions{}, err
	}

	opts := engine.CheckOptions{Remotes: cfg.Remotes, Fetch: getBoolFlag(cmd, "fetch")}
	if flags.Changed("limit") {
		limit := getIntFlag(cmd, "limit")
		switch {
		case limit < 0:
			return engine.CheckOptions{}, fmt.Errorf("--limit must not be negative (got %d)", limit)
		case limit == 0:
			opts.Limit = -1
		default:
			opts.Limit = limit
		}
	}

	kinds, err := cfg.Kinds()
	if err != nil {
		return engine.CheckOptions{}, err
	}
	if getBoolFlag(cmd, "skip-tags") {
		kinds = withoutKind(kinds, model.KindTag)
	}
	if len(kinds) == 0 {
		return engine.CheckOptions{}, errors.New("no categories left to check")
	}
	opts.Kinds = kinds
	if opts.Mode, err = model.ParseMode(cfg.Mode); err != nil {
		return engine.CheckOptions{}, err
	}
	if opts.OnUnreachable, err = model.ParseUnreachablePolicy(cfg.OnUnreachable); err != nil {
		return engine.CheckOptions{}, err
	}
	return opts, nil
}

func withoutKind(kinds []model.RefKind, drop model.RefKind) []model.RefKind {
	out := make([]model.RefKind, 0, len(kinds))
	for _, kind := range kinds {
		if kind != drop {
			out = append(out, kind)
		}
	}
	return out
}
