// SPDX-License-Identifier: MIT
package refcheck

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	narrowTableWidth = 100
	tinyTableWidth   = 80
)

var getTerminalSize = term.GetSize

func tableWidth(cmd *cobra.Command) (int, bool) {
	if cmd == nil {
		return 0, false
	}
	file, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(file.Fd())
	if !isTerminalFD(fd) {
		return 0, false
	}
	width, _, err := getTerminalSize(fd)
	if err != nil || width <= 0 {
		return 0, false
	}
	return width, true
}

// subjectWidth caps the SUBJECT column so table rows fit the terminal.
// Output that is not a terminal keeps subjects whole.
func subjectWidth(cmd *cobra.Command) int {
	width, ok := tableWidth(cmd)
	if !ok {
		return 0
	}
	return subjectWidthFor(width)
}

func subjectWidthFor(width int) int {
	switch {
	case width > 0 && width < tinyTableWidth:
		return 24
	case width > 0 && width < narrowTableWidth:
		return 40
	default:
		return 72
	}
}
