package refcheck

import "github.com/spf13/cobra"

const (
	formatUsage    = "output format: table, wide, json, or yaml"
	noHeadersUsage = "when using table format, do not print headers"
)

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "o", "table", formatUsage)
}

func addNoHeadersFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("no-headers", false, noHeadersUsage)
}

func getStringFlag(cmd *cobra.Command, name string) string {
	value, _ := cmd.Flags().GetString(name)
	return value
}

func getBoolFlag(cmd *cobra.Command, name string) bool {
	value, _ := cmd.Flags().GetBool(name)
	return value
}

func getIntFlag(cmd *cobra.Command, name string) int {
	value, _ := cmd.Flags().GetInt(name)
	return value
}
