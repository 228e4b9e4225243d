package refcheck

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/skaphos/refcheck/internal/model"
)

// progressLine draws an overwritable status line on stderr. It stays silent
// unless stderr is a terminal, so piped output is never polluted.
type progressLine struct {
	out     io.Writer
	enabled bool
	active  bool
}

func newProgressLine(cmd *cobra.Command) *progressLine {
	p := &progressLine{out: cmd.ErrOrStderr()}
	if flagQuiet {
		return p
	}
	if file, ok := p.out.(*os.File); ok {
		p.enabled = isTerminalFD(int(file.Fd()))
	}
	return p
}

func (p *progressLine) update(kind model.RefKind, done, total int) {
	if !p.enabled {
		return
	}
	_, _ = fmt.Fprintf(p.out, "\rchecking %s %d/%d\x1b[K", kind.Plural(), done, total)
	p.active = true
}

// clear erases the line so regular output starts at column zero.
func (p *progressLine) clear() {
	if !p.active {
		return
	}
	_, _ = fmt.Fprint(p.out, "\r\x1b[K")
	p.active = false
}
