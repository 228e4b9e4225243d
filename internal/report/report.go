// Package report renders check results for people and machines.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/skaphos/refcheck/internal/cliio"
	"github.com/skaphos/refcheck/internal/model"
	"github.com/skaphos/refcheck/internal/registry"
	"github.com/skaphos/refcheck/internal/strutil"
	"github.com/skaphos/refcheck/internal/termstyle"
)

// Format selects the output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatWide  Format = "wide"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a --format value. Empty means table.
func ParseFormat(raw string) (Format, error) {
	switch format := Format(strings.ToLower(strings.TrimSpace(raw))); format {
	case "":
		return FormatTable, nil
	case FormatTable, FormatWide, FormatJSON, FormatYAML:
		return format, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q (expected table, wide, json, or yaml)", raw)
	}
}

// Tabular reports whether the format is rendered as text tables.
func (f Format) Tabular() bool {
	return f == FormatTable || f == FormatWide || f == ""
}

// Options control rendering.
type Options struct {
	Format    Format
	NoHeaders bool
	// Color enables ANSI styling of tabular output.
	Color bool
	// SubjectWidth caps subject cells in table output. Zero keeps them
	// whole; wide output never truncates.
	SubjectWidth int
}

const dateLayout = "2006-01-02"

// Render writes rep to w. It never runs git and never mutates rep.
func Render(w io.Writer, rep *model.Report, opts Options) error {
	if rep == nil {
		return errors.New("report is nil")
	}
	switch opts.Format {
	case FormatJSON:
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable, FormatWide, "":
		return renderText(w, rep, opts)
	default:
		return fmt.Errorf("unsupported format %q", opts.Format)
	}
}

func renderText(w io.Writer, rep *model.Report, opts Options) error {
	if _, err := fmt.Fprintln(w, summaryLine(rep)); err != nil {
		return err
	}
	for _, cat := range rep.Categories {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		if err := renderCategory(w, cat, opts); err != nil {
			return err
		}
	}
	if len(rep.Warnings) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "\n%s\n", termstyle.Plain(opts.Color, "WARNINGS", termstyle.Warn)); err != nil {
		return err
	}
	for _, warning := range rep.Warnings {
		if _, err := fmt.Fprintf(w, "  - %s\n", warning); err != nil {
			return err
		}
	}
	return nil
}

func summaryLine(rep *model.Report) string {
	remotes := "no remotes"
	if len(rep.Remotes) > 0 {
		remotes = strings.Join(registry.Names(rep.Remotes), ", ")
	}
	mode := rep.Mode
	if mode == "" {
		mode = model.ModeExact
	}
	return fmt.Sprintf("%s: checked against %s (%s mode)", rep.Path, remotes, mode)
}

func renderCategory(w io.Writer, cat model.CategoryReport, opts Options) error {
	wide := opts.Format == FormatWide
	localOnly := cat.LocalOnly()

	heading := fmt.Sprintf("%s (%d local-only)", strings.ToUpper(cat.Kind.Plural()), len(localOnly))
	if _, err := fmt.Fprintln(w, termstyle.Plain(opts.Color, heading, termstyle.Heading)); err != nil {
		return err
	}
	if cat.Truncated {
		if _, err := fmt.Fprintf(w, "%d/%d processed\n", cat.Evaluated, cat.Total); err != nil {
			return err
		}
	}

	rows := localOnly
	if wide {
		rows = cat.Results
	}
	if len(rows) > 0 {
		headers, cells := tableFor(cat.Kind, rows, opts)
		if err := cliio.WriteTable(w, cliio.Table{Headers: headers, Rows: cells, NoHeaders: opts.NoHeaders, StripEscape: true}); err != nil {
			return err
		}
	}
	if len(localOnly) == 0 {
		_, err := fmt.Fprintf(w, "no local-only %s found\n", cat.Kind.Plural())
		return err
	}

	if _, err := fmt.Fprintln(w, "suggested cleanup (not executed):"); err != nil {
		return err
	}
	for _, command := range cleanupCommands(localOnly) {
		if _, err := fmt.Fprintf(w, "  %s\n", command); err != nil {
			return err
		}
	}
	return nil
}

func tableFor(kind model.RefKind, rows []model.ClassificationResult, opts Options) ([]string, [][]string) {
	wide := opts.Format == FormatWide
	subjectWidth := opts.SubjectWidth
	if wide {
		subjectWidth = 0
	}
	withNotes := false
	for _, res := range rows {
		if res.Note != "" {
			withNotes = true
			break
		}
	}

	var headers []string
	if kind == model.KindStash {
		headers = []string{"STASH", "BRANCH", "COMMIT", "DATE", "SUBJECT"}
	} else {
		headers = []string{"NAME", "COMMIT", "AUTHOR", "DATE", "SUBJECT"}
	}
	if wide {
		headers = append(headers, "STATUS", "REMOTES")
	}
	if withNotes {
		headers = append(headers, "NOTE")
	}

	cells := make([][]string, 0, len(rows))
	for _, res := range rows {
		ref := res.Ref
		subject := strutil.Truncate(ref.Subject, subjectWidth)
		var row []string
		if kind == model.KindStash {
			row = []string{ref.Name, dash(ref.Branch), dash(ref.ShortCommit()), formatDate(ref), subject}
		} else {
			row = []string{ref.Name, dash(ref.ShortCommit()), dash(ref.Author), formatDate(ref), subject}
		}
		if wide {
			row = append(row, status(res, opts.Color), matchedRemotes(res.Matches))
		}
		if withNotes {
			row = append(row, dash(res.Note))
		}
		cells = append(cells, row)
	}
	return headers, cells
}

func status(res model.ClassificationResult, color bool) string {
	if res.LocalOnly {
		return termstyle.Colorize(color, "local-only", termstyle.LocalOnly)
	}
	return termstyle.Colorize(color, "present", termstyle.Present)
}

func matchedRemotes(matches []model.Match) string {
	if len(matches) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(matches))
	for _, match := range matches {
		if match.Kind == model.MatchDirect || match.Kind == "" {
			parts = append(parts, match.Remote)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s(%s)", match.Remote, match.Kind))
	}
	return strings.Join(parts, ",")
}

// cleanupCommands lists suggested commands in result order, except that
// stash drops run from the highest index down so earlier drops do not
// renumber later ones.
func cleanupCommands(results []model.ClassificationResult) []string {
	ordered := append([]model.ClassificationResult(nil), results...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Ref, ordered[j].Ref
		if a.Kind == model.KindStash && b.Kind == model.KindStash {
			return a.Index > b.Index
		}
		return false
	})
	commands := make([]string, 0, len(ordered))
	for _, res := range ordered {
		if res.SuggestedCommand != "" {
			commands = append(commands, res.SuggestedCommand)
		}
	}
	return commands
}

func formatDate(ref model.LocalRef) string {
	if ref.Date.IsZero() {
		return "-"
	}
	return ref.Date.Format(dateLayout)
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
