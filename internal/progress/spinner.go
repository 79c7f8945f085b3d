// Package progress provides terminal progress indicators for long-running
// extraction and rebuild passes.
package progress

import (
	"os"
	"sync"

	"github.com/pterm/pterm"

	"github.com/dece/dksarc/internal/termcolor"
)

// Spinner displays an animated pterm spinner on stderr while a long-running
// operation is in progress. It is only displayed when stderr is a TTY;
// in non-interactive environments (piped output, CI, e2e tests) it is
// silent, matching pterm's own RawOutput auto-detection.
type Spinner struct {
	msg     string
	mu      sync.Mutex
	printer *pterm.SpinnerPrinter
}

// New creates a Spinner that will display msg alongside the animation.
func New(msg string) *Spinner {
	return &Spinner{msg: msg}
}

// Start begins the spinner animation. On a non-terminal stderr it is a
// no-op.
func (s *Spinner) Start() {
	if !termcolor.IsTerminal(os.Stderr.Fd()) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	spinner := pterm.DefaultSpinner
	spinner.Writer = os.Stderr
	printer, err := spinner.Start(s.msg)
	if err != nil {
		return
	}
	s.printer = printer
}

// Stop halts the spinner animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.printer == nil {
		return
	}
	_ = s.printer.Stop()
	s.printer = nil
}

// UpdateText changes the message displayed alongside the animation without
// restarting it. Passed as orchestrator.ExtractOptions.OnPhase by the
// cascade CLI path to report which phase is running.
func (s *Spinner) UpdateText(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msg = msg
	if s.printer != nil {
		s.printer.UpdateText(msg)
	}
}
