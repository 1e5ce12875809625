package callsession

import "fmt"

// ViewMode is how the active call is presented. Any mode may move to any
// other; only EndCall removes the session.
type ViewMode int

const (
	ViewEmbedded ViewMode = iota
	ViewFullscreen
	ViewPip
	ViewMinimized
)

var viewModeNames = [...]string{
	ViewEmbedded:   "embedded",
	ViewFullscreen: "fullscreen",
	ViewPip:        "pip",
	ViewMinimized:  "minimized",
}

// Valid reports whether m is one of the four modes
func (m ViewMode) Valid() bool {
	return m >= ViewEmbedded && m <= ViewMinimized
}

func (m ViewMode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("ViewMode(%d)", int(m))
	}
	return viewModeNames[m]
}

// ParseViewMode maps a mode name back to its value
func ParseViewMode(s string) (ViewMode, error) {
	for i, name := range viewModeNames {
		if name == s {
			return ViewMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown view mode %q", s)
}

func (m ViewMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid view mode %d", int(m))
	}
	return []byte(viewModeNames[m]), nil
}

func (m *ViewMode) UnmarshalText(text []byte) error {
	v, err := ParseViewMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
