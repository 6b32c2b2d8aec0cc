package main

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// spinner shows the running step on an interactive terminal.
type spinner struct {
	bar *progressbar.ProgressBar
}

// newSpinner returns nil when f is not a terminal.
func newSpinner(f *os.File) *spinner {
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return nil
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(f),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionClearOnFinish(),
	)
	return &spinner{bar: bar}
}

func (s *spinner) Describe(step string) {
	s.bar.Describe(step)
	_ = s.bar.Add(1)
}

func (s *spinner) Finish() {
	_ = s.bar.Finish()
}
