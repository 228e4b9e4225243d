// SPDX-License-Identifier: MIT
package refcheck

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/skaphos/refcheck/internal/cliio"
	"github.com/skaphos/refcheck/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage refcheck configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default refcheck configuration",
	Long:  "Creates .refcheck.yaml at the repository top-level, or in the current directory outside a repository, unless --config or REFCHECK_CONFIG points elsewhere.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := workDir()
		if err != nil {
			return err
		}
		loc, err := config.InitLocation(flagConfig, cwd, repositoryRoot(cmd.Context(), cwd))
		if err != nil {
			return err
		}
		cfgPath := loc.Path
		if _, err := os.Stat(cfgPath); err == nil && !getBoolFlag(cmd, "force") {
			if !stdinIsTerminal(cmd) {
				return fmt.Errorf("config already exists at %q (use --force to overwrite)", cfgPath)
			}
			confirmed, err := cliio.PromptYesNo(cmd.ErrOrStderr(), cmd.InOrStdin(), fmt.Sprintf("Overwrite %s? [y/N]: ", cfgPath))
			if err != nil {
				return err
			}
			if !confirmed {
				infof(cmd, "config init cancelled")
				return nil
			}
		}

		cfg := config.DefaultConfig()
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote config to %s\n", cfgPath)
		logOutputWriteFailure(cmd, "config init", err)
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Print the effective configuration and where it came from",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := workDir()
		if err != nil {
			return err
		}
		cfg, loc, err := loadConfig(cmd, cwd)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		source := fmt.Sprintf("%s (%s)", loc.Path, loc.Source)
		if _, statErr := os.Stat(loc.Path); statErr != nil {
			source = loc.Path + " (not found, using defaults)"
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", source, data)
		logOutputWriteFailure(cmd, "config view", err)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite existing config without prompting")
	configCmd.AddCommand(configInitCmd, configViewCmd)

	rootCmd.AddCommand(configCmd)
}

func stdinIsTerminal(cmd *cobra.Command) bool {
	file, ok := cmd.InOrStdin().(*os.File)
	return ok && isTerminalFD(int(file.Fd()))
}
