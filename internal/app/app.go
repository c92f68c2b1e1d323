// Package app runs the live landmark viewer and the live hand-sign
// classifier on top of a camera, a hand detector and a display.
package app

import (
	"gocv.io/x/gocv"
)

// Keys that end the live loops.
const (
	KeyEsc = 27
)

// Display shows frames and reports key presses.
type Display interface {
	Show(frame *gocv.Mat)
	// WaitKey waits up to ms milliseconds and returns the pressed key,
	// or -1 when none was pressed.
	WaitKey(ms int) int
	Close() error
}

// IsQuitKey reports whether k is q, Q or Esc. Only the low byte is
// compared; negative values mean no key.
func IsQuitKey(k int) bool {
	if k < 0 {
		return false
	}
	switch k & 0xFF {
	case 'q', 'Q', KeyEsc:
		return true
	}
	return false
}

// Window is a Display backed by an OpenCV HighGUI window.
type Window struct {
	w *gocv.Window
}

// NewWindow opens a window with the given title.
func NewWindow(title string) *Window {
	return &Window{w: gocv.NewWindow(title)}
}

// Show renders frame in the window.
func (w *Window) Show(frame *gocv.Mat) {
	w.w.IMShow(*frame)
}

// WaitKey pumps the window events for up to ms milliseconds.
func (w *Window) WaitKey(ms int) int {
	return w.w.WaitKey(ms)
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.w.Close()
}

// mirror flips frame horizontally in place.
func mirror(frame *gocv.Mat) {
	gocv.Flip(*frame, frame, 1)
}
