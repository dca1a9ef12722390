package queryview

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

const fullscreenKey = "fullscreen"

// locationSyncedMsg reports that a deferred location write has been applied.
type locationSyncedMsg struct{}

// FullscreenSync mirrors the fullscreen toggle into the shareable location.
type FullscreenSync struct {
	mu       sync.Mutex
	loc      Location
	on       bool
	minWidth int
	width    int
}

// NewFullscreenSync reads the initial flag from loc. The mode is only
// available when the viewport is at least minWidth wide.
func NewFullscreenSync(loc Location, minWidth int) *FullscreenSync {
	f := &FullscreenSync{loc: loc, minWidth: minWidth}
	if loc != nil {
		_, f.on = loc.Read(fullscreenKey)
	}
	return f
}

// Toggle flips the flag and returns the deferred location write.
func (f *FullscreenSync) Toggle() tea.Cmd {
	f.mu.Lock()
	f.on = !f.on
	f.mu.Unlock()
	return f.syncCmd()
}

// syncCmd writes the flag value current at execution time, so overlapping
// writes converge on the latest state.
func (f *FullscreenSync) syncCmd() tea.Cmd {
	if f.loc == nil {
		return nil
	}
	return func() tea.Msg {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.on {
			f.loc.Write(fullscreenKey, "true")
		} else {
			f.loc.Write(fullscreenKey, "")
		}
		return locationSyncedMsg{}
	}
}

// SetWidth records the current viewport width. Zero means unknown.
func (f *FullscreenSync) SetWidth(w int) {
	f.mu.Lock()
	f.width = w
	f.mu.Unlock()
}

// Stored returns the toggle state regardless of width.
func (f *FullscreenSync) Stored() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// Enabled returns the effective mode: forced off below the width threshold.
func (f *FullscreenSync) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on && f.availableLocked()
}

// Available reports whether the viewport is wide enough for the mode.
func (f *FullscreenSync) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.availableLocked()
}

func (f *FullscreenSync) availableLocked() bool {
	return f.width == 0 || f.minWidth <= 0 || f.width >= f.minWidth
}
