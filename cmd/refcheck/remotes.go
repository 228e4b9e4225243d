package refcheck

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/skaphos/refcheck/internal/cliio"
	"github.com/skaphos/refcheck/internal/engine"
	"github.com/skaphos/refcheck/internal/report"
	"github.com/skaphos/refcheck/internal/strutil"
)

var remotesCmd = &cobra.Command{
	Use:   "remotes",
	Short: "Show the remotes refcheck would compare against",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		adapter, err := adapterFor(cfg.Backend, nil)
		if err != nil {
			return err
		}
		remotes, err := engine.New(cfg, adapter).Remotes(cmd.Context(), cwd, strutil.SplitCSV(getStringFlag(cmd, "remote")))
		if err != nil {
			return err
		}

		switch format {
		case report.FormatJSON:
			data, err := json.MarshalIndent(remotes, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			logOutputWriteFailure(cmd, "remotes json", err)
		case report.FormatYAML:
			data, err := yaml.Marshal(remotes)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			logOutputWriteFailure(cmd, "remotes yaml", err)
		default:
			rows := make([][]string, 0, len(remotes))
			for i, remote := range remotes {
				rows = append(rows, []string{fmt.Sprintf("%d", i+1), remote.Name, remote.URL})
			}
			logOutputWriteFailure(cmd, "remotes table", cliio.WriteTable(cmd.OutOrStdout(), cliio.Table{
				Headers:   []string{"PRIORITY", "NAME", "URL"},
				Rows:      rows,
				NoHeaders: getBoolFlag(cmd, "no-headers"),
			}))
		}
		return nil
	},
}

func init() {
	remotesCmd.Flags().String("remote", "", "comma-separated candidate remotes in priority order (default from config)")
	addFormatFlag(remotesCmd)
	addNoHeadersFlag(remotesCmd)

	rootCmd.AddCommand(remotesCmd)
}
