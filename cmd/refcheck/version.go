package refcheck

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "refcheck %s\n", Version)
		_, _ = fmt.Fprintf(out, "  commit:  %s\n", Commit)
		_, _ = fmt.Fprintf(out, "  built:   %s\n", Date)
		_, _ = fmt.Fprintf(out, "  go:      %s\n", runtime.Version())
		_, _ = fmt.Fprintf(out, "  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
