// Package cliio holds terminal input and table output helpers shared by the
// CLI commands and the reporter.
package cliio

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/skaphos/refcheck/internal/tableutil"
)

// PromptYesNo writes prompt and reads a yes/no response from input.
func PromptYesNo(out io.Writer, in io.Reader, prompt string) (bool, error) {
	if _, err := fmt.Fprint(out, prompt); err != nil {
		return false, err
	}
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	choice := strings.ToLower(strings.TrimSpace(line))
	return choice == "y" || choice == "yes", nil
}

// Table is a header row plus data rows.
type Table struct {
	Headers   []string
	Rows      [][]string
	NoHeaders bool
	// StripEscape hides tabwriter-escaped sequences, such as colors, from
	// column width calculations.
	StripEscape bool
}

// WriteTable renders table as aligned columns. Short rows are padded with
// "-" so every row has a cell per header.
func WriteTable(out io.Writer, table Table) error {
	w := tableutil.New(out, table.StripEscape)
	if err := tableutil.PrintHeaders(w, table.NoHeaders, strings.Join(table.Headers, "\t")); err != nil {
		return err
	}
	for _, row := range table.Rows {
		cells := row
		if len(cells) < len(table.Headers) {
			cells = append(append([]string(nil), row...), make([]string, len(table.Headers)-len(row))...)
			for i := len(row); i < len(cells); i++ {
				cells[i] = "-"
			}
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, "\t")); err != nil {
			return err
		}
	}
	return w.Flush()
}
