package textfmt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

//go:embed emoji.json
var defaultEmojiJSON []byte

var (
	defaultEmojiOnce  sync.Once
	defaultEmojiTable *EmojiTable
	defaultEmojiErr   error
)

type emojiEntry struct {
	ShortName  string   `json:"short_name"`
	ShortNames []string `json:"short_names"`
	Unified    string   `json:"unified"`
}

// EmojiTable maps shortcodes to rendered glyphs.
type EmojiTable struct {
	glyphs map[string]string
}

// DefaultEmojiTable returns the table bundled with the binary.
func DefaultEmojiTable() (*EmojiTable, error) {
	defaultEmojiOnce.Do(func() {
		defaultEmojiTable, defaultEmojiErr = ParseEmojiTable(defaultEmojiJSON)
	})
	return defaultEmojiTable, defaultEmojiErr
}

// LoadEmojiTable reads an emoji table file in the emoji-data layout: a JSON
// array of objects with short_name, short_names and unified fields.
func LoadEmojiTable(path string) (*EmojiTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadEmojiTable(f)
}

func ReadEmojiTable(r io.Reader) (*EmojiTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseEmojiTable(data)
}

func ParseEmojiTable(data []byte) (*EmojiTable, error) {
	var entries []emojiEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode emoji table: %w", err)
	}
	table := &EmojiTable{glyphs: make(map[string]string, len(entries)*2)}
	for _, entry := range entries {
		glyph, err := decodeUnified(entry.Unified)
		if err != nil {
			return nil, fmt.Errorf("emoji %q: %w", entry.ShortName, err)
		}
		if entry.ShortName != "" {
			table.glyphs[entry.ShortName] = glyph
		}
		for _, name := range entry.ShortNames {
			if name != "" {
				table.glyphs[name] = glyph
			}
		}
	}
	return table, nil
}

func decodeUnified(unified string) (string, error) {
	if unified == "" {
		return "", fmt.Errorf("empty unified code")
	}
	var b strings.Builder
	for _, part := range strings.Split(unified, "-") {
		cp, err := strconv.ParseUint(part, 16, 32)
		if err != nil {
			return "", fmt.Errorf("invalid code point %q", part)
		}
		b.WriteRune(rune(cp))
	}
	return b.String(), nil
}

func (t *EmojiTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.glyphs)
}

// Glyph returns the rendered emoji for a shortcode, or <shortcode> when the
// table has no entry. Modifier names joined with "::", as reactions report
// skin tones ("+1::skin-tone-2"), render as their glyphs concatenated.
func (t *EmojiTable) Glyph(shortcode string) string {
	if t != nil {
		if glyph, ok := t.glyphs[shortcode]; ok {
			return glyph
		}
		if strings.Contains(shortcode, "::") {
			var b strings.Builder
			for _, part := range strings.Split(shortcode, "::") {
				glyph, ok := t.glyphs[part]
				if !ok {
					return "<" + shortcode + ">"
				}
				b.WriteString(glyph)
			}
			return b.String()
		}
	}
	return "<" + shortcode + ">"
}

// ReplaceShortcodes substitutes :shortcode: sequences. A shortcode touching a
// letter or digit on either side is not one (10:30:45 stays as written), and
// text inside anchor elements is never rewritten.
func (t *EmojiTable) ReplaceShortcodes(text string) string {
	if !strings.Contains(text, ":") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		if strings.HasPrefix(text[i:], "<a ") {
			end := strings.Index(text[i:], "</a>")
			if end < 0 {
				b.WriteString(text[i:])
				break
			}
			b.WriteString(text[i : i+end+4])
			i += end + 4
			continue
		}
		if text[i] != ':' || (i > 0 && isAlnum(text[i-1])) {
			b.WriteByte(text[i])
			i++
			continue
		}
		j := i + 1
		for j < len(text) && isShortcodeByte(text[j]) {
			j++
		}
		if j == i+1 || j >= len(text) || text[j] != ':' || (j+1 < len(text) && isAlnum(text[j+1])) {
			b.WriteByte(':')
			i++
			continue
		}
		b.WriteString(t.Glyph(text[i+1 : j]))
		i = j + 1
	}
	return b.String()
}

func isShortcodeByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '+' || c == '-' || c == '\''
}
