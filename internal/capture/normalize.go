package capture

import (
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/crimson-sun/ember/internal/model"
)

const (
	maxMessageRunes = 2000
	maxStackRunes   = 8000
)

// stackTracer is implemented by errors that carry their own stack text.
type stackTracer interface {
	Stack() string
}

// Normalize coerces any input into a RawEvent. It never fails: anything it
// doesn't recognize becomes a custom-typed message.
func Normalize(raw any) model.RawEvent {
	var ev model.RawEvent
	switch v := raw.(type) {
	case model.RawEvent:
		ev = v
	case *model.RawEvent:
		if v != nil {
			ev = *v
		}
	case error:
		ev = model.RawEvent{Type: "error", Message: v.Error()}
		if st, ok := v.(stackTracer); ok {
			ev.Stack = st.Stack()
		}
	case string:
		ev = model.RawEvent{Message: v}
	case map[string]any:
		ev = fromMap(v)
	case nil:
	default:
		ev = model.RawEvent{Message: fmt.Sprint(v)}
	}

	if ev.Type == "" {
		ev.Type = model.TypeCustom
	}
	ev.Type = cleanText(ev.Type, 64)
	ev.Message = cleanText(ev.Message, maxMessageRunes)
	ev.Stack = cleanText(ev.Stack, maxStackRunes)
	if ev.Context != nil {
		c := *ev.Context
		c.Tags = maps.Clone(c.Tags)
		ev.Context = &c
	}
	return ev
}

// fromMap reads the loosely-typed shape collaborators decode from JSON.
// Wrong-typed fields are ignored.
func fromMap(m map[string]any) model.RawEvent {
	ev := model.RawEvent{
		Type:    str(m["type"]),
		Message: str(m["message"]),
		Stack:   str(m["stack"]),
	}
	if ctx, ok := m["context"].(map[string]any); ok {
		c := &model.Context{
			UserAgent: str(ctx["userAgent"]),
			URL:       str(ctx["url"]),
			Viewport:  str(ctx["viewport"]),
			UserID:    str(ctx["userId"]),
		}
		if tags, ok := ctx["tags"].(map[string]any); ok {
			c.Tags = make(map[string]string, len(tags))
			for k, v := range tags {
				c.Tags[k] = fmt.Sprint(v)
			}
		}
		ev.Context = c
	}
	return ev
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// cleanText repairs invalid UTF-8, applies NFC, and truncates to maxRunes.
func cleanText(s string, maxRunes int) string {
	if s == "" {
		return s
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	s = norm.NFC.String(s)
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes]) + "..."
}
