package router

import (
	"strings"

	"github.com/google/uuid"
)

func newReqID() string {
	id := uuid.New().String()
	return id[:8]
}

// tokenize splits command text on whitespace, honouring quotes and backslash escapes.
//
//	/cmd a "b c" 'd'
func tokenize(s string) []string {
	var (
		out   []string
		buf   strings.Builder
		quote byte
		esc   bool
	)
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case esc:
			buf.WriteByte(ch)
			esc = false
		case ch == '\\':
			esc = true
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				buf.WriteByte(ch)
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}

// parseCommand extracts the command word and arguments from text. ok is false
// for non-commands and for commands addressed to another bot ("/cmd@other").
func parseCommand(text, botUsername string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := tokenize(text)
	if len(parts) == 0 {
		return "", nil, false
	}
	word := strings.TrimPrefix(parts[0], "/")
	if at := strings.IndexByte(word, '@'); at >= 0 {
		target := word[at+1:]
		word = word[:at]
		if botUsername != "" && !strings.EqualFold(target, botUsername) {
			return "", nil, false
		}
	}
	word = strings.ToLower(word)
	if word == "" {
		return "", nil, false
	}
	return word, parts[1:], true
}

// sanitizeCommand converts a name into a Telegram command ([a-z0-9_]{1,32}).
func sanitizeCommand(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == ' ' || r == '/':
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = strings.TrimRight(("cmd_" + out)[:min(32, len(out)+4)], "_")
	}
	return out
}
