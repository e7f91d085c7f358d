package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-isatty"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner draws a one-line activity indicator on stderr until it is stopped
// or its context is done. The text is read again for every frame, so long
// running work can report progress through it. Nothing is drawn when stderr
// is not a terminal.
type Spinner struct {
	out     io.Writer
	text    func() string
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	stopped chan struct{}

	mu    sync.Mutex
	width int
}

// newSpinner creates a spinner showing a fixed message.
func newSpinner(ctx context.Context, message string) *Spinner {
	return newProgressSpinner(ctx, func() string { return message })
}

// newProgressSpinner creates a spinner whose message is produced by text.
func newProgressSpinner(ctx context.Context, text func() string) *Spinner {
	spinnerCtx, cancel := context.WithCancel(ctx)
	var out io.Writer = os.Stderr
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		out = io.Discard
	}
	return &Spinner{
		out:     out,
		text:    text,
		parent:  ctx,
		ctx:     spinnerCtx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
}

// Start begins the animation.
func (s *Spinner) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.draw(spinnerFrames[i%len(spinnerFrames)])
			}
		}
	}()
}

// Stop ends the animation and clears the line. It may be called more than
// once.
func (s *Spinner) Stop() {
	s.cancel()
	if s.started.Load() {
		<-s.stopped
	}
	s.clearLine()
}

// Cancelled reports whether the spinner's parent context is done.
func (s *Spinner) Cancelled() bool {
	return s.parent.Err() != nil
}

func (s *Spinner) draw(frame string) {
	msg := s.text()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := utf8.RuneCountInString(msg) + 2
	pad := ""
	if n < s.width {
		pad = strings.Repeat(" ", s.width-n)
	}
	s.width = max(s.width, n)
	fmt.Fprintf(s.out, "\r%s %s%s", styleIconSpinner.Render(frame), StyleDim.Render(msg), pad)
}

func (s *Spinner) clearLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.width == 0 {
		return
	}
	fmt.Fprintf(s.out, "\r%s\r", strings.Repeat(" ", s.width))
	s.width = 0
}
