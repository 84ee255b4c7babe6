package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ListStyle styles a selector list
type ListStyle struct {
	Title    lipgloss.Style
	Focused  lipgloss.Style // title when the list has focus
	Item     lipgloss.Style
	Cursor   lipgloss.Style
	Empty    lipgloss.Style
	Mark     rune // drawn next to the cursor entry
	Selected rune // drawn next to the chosen entry when it is not under the cursor
}

// RenderList renders a titled list with a cursor. selected marks the
// chosen entry (-1 for none); an empty list shows placeholder.
func RenderList(title string, items []string, cursor, selected int, focused bool, placeholder string, st ListStyle) string {
	var lines []string
	if focused {
		lines = append(lines, st.Focused.Render(title))
	} else {
		lines = append(lines, st.Title.Render(title))
	}

	if len(items) == 0 {
		lines = append(lines, "  "+st.Empty.Render(placeholder))
		return strings.Join(lines, "\n")
	}

	for i, item := range items {
		switch {
		case i == cursor && focused:
			lines = append(lines, st.Cursor.Render(fmt.Sprintf("%c %s", st.Mark, item)))
		case i == selected:
			lines = append(lines, st.Item.Render(fmt.Sprintf("%c %s", st.Selected, item)))
		default:
			lines = append(lines, st.Item.Render("  "+item))
		}
	}
	return strings.Join(lines, "\n")
}

// RenderButton renders "[ label ]", dimmed when disabled.
func RenderButton(label string, enabled bool, on, off lipgloss.Style) string {
	text := "[ " + label + " ]"
	if !enabled {
		return off.Render(text)
	}
	return on.Render(text)
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
