// Package tray provides a system tray menu for the senas serve mode.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func(enabled bool)
	onReload func()
	onQuit   func()
	enabled  bool
	lastSign string
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle   *systray.MenuItem
	menuLastSign *systray.MenuItem
	menuDataset  *systray.MenuItem
	datasetTitle string
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled:      true,
		datasetTitle: datasetTitle(0, 0),
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnReload sets the callback run when "Reload dataset" is clicked. It runs
// on its own goroutine.
func (t *Tray) OnReload(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReload = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called and must run on the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("senas")
	systray.SetTooltip("senas hand-sign classifier")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle sign classification")
	systray.AddSeparator()

	t.menuLastSign = systray.AddMenuItem(lastSignTitle(t.lastSign), "Last recognized sign")
	t.menuLastSign.Disable()
	t.menuDataset = systray.AddMenuItem(t.datasetTitle, "Loaded dataset")
	t.menuDataset.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuReload := systray.AddMenuItem("Reload dataset", "Rescan the dataset folder")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit senas")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuReload.ClickedCh:
				t.handleReload()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleReload() {
	t.mu.RLock()
	callback := t.onReload
	t.mu.RUnlock()

	if callback != nil {
		go callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetLastSign updates the last sign display in the menu. Repeated labels
// are ignored.
func (t *Tray) SetLastSign(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if label == t.lastSign {
		return
	}
	t.lastSign = label
	if t.menuLastSign != nil {
		t.menuLastSign.SetTitle(lastSignTitle(label))
	}
}

// LastSign returns the label shown in the menu.
func (t *Tray) LastSign() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSign
}

// SetDataset updates the dataset summary in the menu.
func (t *Tray) SetDataset(classes, samples int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.datasetTitle = datasetTitle(classes, samples)
	if t.menuDataset != nil {
		t.menuDataset.SetTitle(t.datasetTitle)
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Paused"
}

func lastSignTitle(label string) string {
	if label == "" {
		return "Last: none"
	}
	return "Last: " + label
}

func datasetTitle(classes, samples int) string {
	return fmt.Sprintf("Dataset: %d classes, %d samples", classes, samples)
}
