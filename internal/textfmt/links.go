package textfmt

import "strings"

var linkSchemes = []string{"https://", "http://", "ftp://"}

// Linkify turns <url> and <url|label> sequences into anchor elements. Only
// URLs with a known scheme and a dotted host qualify; anything else, such as
// <http://localhost> or a ratio, stays as written.
func Linkify(text string) string {
	if !strings.Contains(text, "<") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 32)
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
		if anchor, ok := anchorFor(body); ok {
			b.WriteString(anchor)
		} else {
			b.WriteString(text[i:next])
		}
		i = next
	}
	return b.String()
}

func anchorFor(body string) (string, bool) {
	target, label := splitLabel(body)
	if !isLinkTarget(target) {
		return "", false
	}
	if label == "" {
		label = strings.TrimPrefix(target, "mailto:")
	}
	return `<a href="` + strings.ReplaceAll(target, `"`, "&quot;") + `">` + label + `</a>`, true
}

func isLinkTarget(target string) bool {
	if strings.ContainsAny(target, " \t\n<>") {
		return false
	}
	if rest, ok := strings.CutPrefix(target, "mailto:"); ok {
		at := strings.LastIndexByte(rest, '@')
		return at > 0 && validHost(rest[at+1:])
	}
	for _, scheme := range linkSchemes {
		if len(target) <= len(scheme) || !strings.EqualFold(target[:len(scheme)], scheme) {
			continue
		}
		host := target[len(scheme):]
		if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
			host = host[:idx]
		}
		if idx := strings.LastIndexByte(host, '@'); idx >= 0 {
			host = host[idx+1:]
		}
		if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
			host = host[:idx]
		}
		return validHost(host)
	}
	return false
}

// validHost requires at least one dot, no empty labels, and a final label of
// two or more letters.
func validHost(host string) bool {
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !isAlnum(c) && c != '-' {
				return false
			}
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	for i := 0; i < len(tld); i++ {
		if c := tld[i] | 0x20; c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
