// Package tray provides the macOS menu bar controls for the face gift demo.
package tray

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getlantern/systray"
	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/logging"
)

// Snapshot is what the menu shows.
type Snapshot struct {
	Enabled   bool
	Person    string
	Gesture   string
	GestureAt time.Time
}

// Tray is the menu bar app. Status is polled to keep the menu current.
type Tray struct {
	status   func() Snapshot
	interval time.Duration
	log      *zap.SugaredLogger

	mu          sync.RWMutex
	onToggle    func(enabled bool)
	onDashboard func()
	onReset     func()
	onQuit      func()
	enabled     bool

	menuToggle  *systray.MenuItem
	menuPerson  *systray.MenuItem
	menuGesture *systray.MenuItem
}

// New returns a tray that refreshes from status every interval.
func New(status func() Snapshot, interval time.Duration, log *zap.SugaredLogger) *Tray {
	if interval <= 0 {
		interval = time.Second
	}
	return &Tray{status: status, interval: interval, log: logging.OrNop(log), enabled: true}
}

// OnToggle sets the callback for the detection toggle.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnDashboard sets the callback for "Open Dashboard".
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnReset sets the callback for "Reset Faces".
func (t *Tray) OnReset(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReset = fn
}

// OnQuit sets the callback run before the tray exits.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run blocks until Quit or ctx is done. It must be called from the main
// goroutine on macOS.
func (t *Tray) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	systray.Run(func() { t.onReady(ctx) }, cancel)
}

// Quit closes the menu and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady(ctx context.Context) {
	systray.SetTitle("FaceGift")
	systray.SetTooltip("FaceGift face and gesture demo")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleLabel(true), "Toggle face and gesture detection")
	systray.AddSeparator()
	t.menuPerson = systray.AddMenuItem(personLabel(""), "Face in focus")
	t.menuPerson.Disable()
	t.menuGesture = systray.AddMenuItem(gestureLabel("", time.Time{}, time.Now()), "Last gesture")
	t.menuGesture.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	menuReset := systray.AddMenuItem("Reset Faces", "Forget every tracked face")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit FaceGift")

	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				systray.Quit()
				return
			case <-ticker.C:
				t.refresh()
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuDashboard.ClickedCh:
				t.call(&t.onDashboard, true)
			case <-menuReset.ClickedCh:
				t.call(&t.onReset, true)
			case <-menuQuit.ClickedCh:
				t.call(&t.onQuit, false)
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) refresh() {
	if t.status == nil {
		return
	}
	s := t.status()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = s.Enabled
	t.menuToggle.SetTitle(toggleLabel(s.Enabled))
	t.menuPerson.SetTitle(personLabel(s.Person))
	t.menuGesture.SetTitle(gestureLabel(s.Gesture, s.GestureAt, time.Now()))
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	t.menuToggle.SetTitle(toggleLabel(enabled))
	callback := t.onToggle
	t.mu.Unlock()

	t.log.Infof("tray: detection %v", enabled)
	if callback != nil {
		callback(enabled)
	}
}

// call runs the callback stored at fn, in the background when async is set.
func (t *Tray) call(fn *func(), async bool) {
	t.mu.RLock()
	callback := *fn
	t.mu.RUnlock()
	switch {
	case callback == nil:
	case async:
		go callback()
	default:
		callback()
	}
}

// IsEnabled returns the toggle state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func toggleLabel(enabled bool) string {
	if enabled {
		return "● Detection On"
	}
	return "○ Detection Off"
}

func personLabel(name string) string {
	if name == "" {
		return "Person: nobody"
	}
	return "Person: " + name
}

func gestureLabel(name string, at, now time.Time) string {
	if name == "" {
		return "Last gesture: none"
	}
	ago := now.Sub(at).Round(time.Second)
	if at.IsZero() || ago < 0 {
		return "Last gesture: " + name
	}
	return fmt.Sprintf("Last gesture: %s (%s ago)", name, ago)
}
