// Package textfmt converts chat markup into archive text: mentions become
// names, links become anchors and emoji shortcodes become glyphs, in that
// order.
package textfmt

// Normalizer applies the three transforms with a fixed directory snapshot
// and emoji table. It is safe for concurrent use.
type Normalizer struct {
	dir   Directory
	emoji *EmojiTable
}

func NewNormalizer(dir Directory, emoji *EmojiTable) *Normalizer {
	if dir.Users == nil {
		dir.Users = map[string]string{}
	}
	if dir.Channels == nil {
		dir.Channels = map[string]string{}
	}
	return &Normalizer{dir: dir, emoji: emoji}
}

// Text runs mentions, links and emoji over a message body. Links run after
// mentions so <@U1> is never mistaken for a URL, and emoji run last so
// anchors can be skipped.
func (n *Normalizer) Text(text string) string {
	text = ReplaceMentions(text, n.dir)
	text = Linkify(text)
	return n.emoji.ReplaceShortcodes(text)
}

// UserName resolves a user id the same way a <@id> mention is resolved.
func (n *Normalizer) UserName(id string) string {
	return n.dir.userName(id)
}

func (n *Normalizer) UserNames(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, n.dir.userName(id))
	}
	return names
}

// Emoji resolves a bare reaction name, as reported without colons.
func (n *Normalizer) Emoji(name string) string {
	return n.emoji.Glyph(name)
}
