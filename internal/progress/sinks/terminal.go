package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/JakeFAU/comic-archiver/internal/comics"
	"github.com/JakeFAU/comic-archiver/internal/progress"
)

// IsTerminal reports whether f is attached to an interactive terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// TerminalSink draws a progress bar sized by the RUN_START total.
type TerminalSink struct {
	out io.Writer

	mu     sync.Mutex
	bar    *progressbar.ProgressBar
	failed int
}

// NewTerminalSink renders to out, usually os.Stderr.
func NewTerminalSink(out io.Writer) *TerminalSink {
	return &TerminalSink{out: out}
}

// Consume advances the bar.
func (s *TerminalSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.bar = s.newBar(evt.Total)
		case progress.StageItemDone:
			if s.bar == nil {
				continue
			}
			if evt.Outcome == comics.ItemFailed {
				s.failed++
				s.bar.Describe(fmt.Sprintf("archiving (%d failed)", s.failed))
			}
			if err := s.bar.Add(1); err != nil {
				return fmt.Errorf("advance progress bar: %w", err)
			}
		case progress.StageRunDone:
			if s.bar != nil {
				if err := s.bar.Finish(); err != nil {
					return fmt.Errorf("finish progress bar: %w", err)
				}
			}
		}
	}
	return nil
}

func (s *TerminalSink) newBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions64(int64(total),
		progressbar.OptionSetWriter(s.out),
		progressbar.OptionSetDescription("archiving"),
		progressbar.OptionSetItsString("strips"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(s.out) }),
	)
}

// Current returns the number of items drawn so far.
func (s *TerminalSink) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar == nil {
		return 0
	}
	return s.bar.State().CurrentNum
}

// Close implements progress.Sink.
func (s *TerminalSink) Close(context.Context) error {
	return nil
}
