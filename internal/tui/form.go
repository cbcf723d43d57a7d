package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// field is a single-line text input.
type field struct {
	label  string
	value  []rune
	masked bool
	limit  int
}

// form is a list of fields with one focused.
type form struct {
	fields []field
	focus  int
}

func newForm(fields ...field) form {
	return form{fields: fields}
}

func (f form) value(i int) string {
	return string(f.fields[i].value)
}

func (f form) clear(i int) form {
	f.fields = append([]field(nil), f.fields...)
	f.fields[i].value = nil
	return f
}

// update applies editing keys. It reports false for keys it does not consume.
func (f form) update(msg tea.KeyMsg) (form, bool) {
	if len(f.fields) == 0 {
		return f, false
	}
	f.fields = append([]field(nil), f.fields...)
	cur := &f.fields[f.focus]

	switch msg.Type {
	case tea.KeyTab, tea.KeyDown:
		f.focus = (f.focus + 1) % len(f.fields)
	case tea.KeyShiftTab, tea.KeyUp:
		f.focus = (f.focus + len(f.fields) - 1) % len(f.fields)
	case tea.KeyBackspace:
		if n := len(cur.value); n > 0 {
			cur.value = append([]rune(nil), cur.value[:n-1]...)
		}
	case tea.KeySpace:
		cur.value = appendLimited(cur.value, []rune{' '}, cur.limit)
	case tea.KeyRunes:
		cur.value = appendLimited(cur.value, msg.Runes, cur.limit)
	default:
		return f, false
	}
	return f, true
}

func appendLimited(v, r []rune, limit int) []rune {
	out := append(append([]rune(nil), v...), r...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f form) View() string {
	var b strings.Builder
	for i, fl := range f.fields {
		cursor := "  "
		if i == f.focus {
			cursor = "> "
		}
		shown := string(fl.value)
		if fl.masked {
			shown = strings.Repeat("*", len(fl.value))
		}
		b.WriteString(cursor + fl.label + ": " + shown + "\n")
	}
	return b.String()
}
