package tui

import tea "github.com/charmbracelet/bubbletea"

// Modal is a self-contained modal that owns its own Update/View lifecycle.
// Modals are managed via a stack on the page; the topmost modal receives
// all key input and renders full-screen.
type Modal interface {
	// ID returns a unique identifier used to deduplicate pushes.
	ID() string
	// Update processes a message. Return pop=true to close the modal.
	Update(msg tea.Msg) (pop bool, cmd tea.Cmd)
	// View renders the modal content for the given terminal dimensions.
	View(width, height int) string
}

// ModalStack is embedded by pages that show modals.
type ModalStack struct {
	modals []Modal
}

// PushModal pushes m unless a modal with the same id is already open.
func (s *ModalStack) PushModal(m Modal) {
	for _, existing := range s.modals {
		if existing.ID() == m.ID() {
			return
		}
	}
	s.modals = append(s.modals, m)
}

// PopModal removes the topmost modal.
func (s *ModalStack) PopModal() {
	if len(s.modals) > 0 {
		s.modals = s.modals[:len(s.modals)-1]
	}
}

// HasModal reports whether any modal is open.
func (s *ModalStack) HasModal() bool { return len(s.modals) > 0 }

// TopModal returns the topmost modal or nil.
func (s *ModalStack) TopModal() Modal {
	if len(s.modals) == 0 {
		return nil
	}
	return s.modals[len(s.modals)-1]
}

// updateTopModal routes msg to the topmost modal and pops it when asked.
func (s *ModalStack) updateTopModal(msg tea.Msg) tea.Cmd {
	top := s.TopModal()
	if top == nil {
		return nil
	}
	pop, cmd := top.Update(msg)
	if pop {
		s.PopModal()
	}
	return cmd
}
