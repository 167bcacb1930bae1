package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	spinnerFrameWidth = 2 // braille frames render about two columns wide
	spinnerAnimDelay  = 80 * time.Millisecond
	spinnerClearPad   = 5
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinner animates on a terminal while a slow operation (sync, sign-out,
// guest upload) runs. Off a terminal it prints the message once.
type spinner struct {
	message string
	w       io.Writer
	stop    chan struct{}
	stopped chan struct{}
}

func newSpinner(w io.Writer, message string) *spinner {
	return &spinner{
		message: message,
		w:       w,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (s *spinner) Start() {
	if !isTTY() {
		close(s.stopped)
		if !outputJSON {
			fmt.Fprintf(s.w, "%s...\n", s.message)
		}
		return
	}

	go func() {
		defer close(s.stopped)
		style := lipgloss.NewStyle().Foreground(colorPrimary)
		ticker := time.NewTicker(spinnerAnimDelay)
		defer ticker.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(s.w, "\r%s %s", style.Render(spinnerFrames[i%len(spinnerFrames)]), s.message)
			select {
			case <-s.stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop waits for the last frame to be drawn, then clears the line.
func (s *spinner) Stop() {
	select {
	case <-s.stopped:
		return
	default:
	}
	close(s.stop)
	<-s.stopped
	width := spinnerFrameWidth + 1 + len(s.message) + spinnerClearPad
	fmt.Fprint(s.w, "\r"+strings.Repeat(" ", width)+"\r")
}

// runWithSpinner runs operation while the spinner animates.
func runWithSpinner(w io.Writer, message string, operation func() error) error {
	spin := newSpinner(w, message)
	spin.Start()
	defer spin.Stop()
	return operation()
}
