// Package display shows frames in a desktop window and maps key presses
// to session actions.
package display

import (
	"gocv.io/x/gocv"
)

// Action is a user command read from the keyboard.
type Action int

const (
	None Action = iota
	Quit
	Recapture
	Screenshot
)

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case Quit:
		return "quit"
	case Recapture:
		return "recapture"
	case Screenshot:
		return "screenshot"
	default:
		return "none"
	}
}

const keyEsc = 27

// ActionForKey maps a WaitKey result to an action.
// q or ESC quits, r recaptures the background, s saves a screenshot.
// Anything else, including -1 for no key, is None.
func ActionForKey(key int) Action {
	if key < 0 {
		return None
	}
	switch key & 0xff {
	case 'q', 'Q', keyEsc:
		return Quit
	case 'r', 'R':
		return Recapture
	case 's', 'S':
		return Screenshot
	}
	return None
}

// Window is a named on-screen window.
type Window struct {
	win *gocv.Window
}

// NewWindow opens a window with the given title.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Show draws img. The window only refreshes when Poll is called.
func (w *Window) Show(img gocv.Mat) {
	w.win.IMShow(img)
}

// Poll pumps the window event loop for 1ms and returns the key action.
func (w *Window) Poll() Action {
	return ActionForKey(w.win.WaitKey(1))
}

// Open reports whether the window is still on screen.
func (w *Window) Open() bool {
	return w.win.IsOpen()
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}
