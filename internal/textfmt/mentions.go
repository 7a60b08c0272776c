package textfmt

import "strings"

// Directory resolves ids seen in message markup to display names.
type Directory struct {
	Users    map[string]string
	Channels map[string]string
}

func (d Directory) userName(id string) string {
	if name, ok := d.Users[id]; ok && strings.TrimSpace(name) != "" {
		return name
	}
	return "unknown(" + id + ")"
}

func (d Directory) channelName(id string) (string, bool) {
	name, ok := d.Channels[id]
	return name, ok && strings.TrimSpace(name) != ""
}

// ReplaceMentions rewrites <@U..>, <#C..> and <!special> control sequences.
// Other bracketed sequences, links included, are copied unchanged.
func ReplaceMentions(text string, dir Directory) string {
	if !strings.Contains(text, "<") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		if text[i] != '<' {
			b.WriteByte(text[i])
			i++
			continue
		}
		end := strings.IndexByte(text[i+1:], '>')
		if end < 0 {
			b.WriteString(text[i:])
			break
		}
		body := text[i+1 : i+1+end]
		next := i + end + 2
		if replacement, ok := mentionReplacement(body, dir); ok {
			b.WriteString(replacement)
		} else {
			b.WriteString(text[i:next])
		}
		i = next
	}
	return b.String()
}

func mentionReplacement(body string, dir Directory) (string, bool) {
	if len(body) < 2 {
		return "", false
	}
	id, label := splitLabel(body[1:])
	switch body[0] {
	case '@':
		if !isIdentifier(id) {
			return "", false
		}
		return "@" + dir.userName(id), true
	case '#':
		if !isIdentifier(id) {
			return "", false
		}
		if name, ok := dir.channelName(id); ok {
			return "#" + name, true
		}
		if label != "" {
			return "#" + label, true
		}
		return "#unknown(" + id + ")", true
	case '!':
		switch id {
		case "here", "channel", "everyone":
			return "@" + id, true
		}
		if label != "" {
			return label, true
		}
		return "", false
	}
	return "", false
}

func splitLabel(s string) (string, string) {
	if idx := strings.IndexByte(s, '|'); idx >= 0 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
