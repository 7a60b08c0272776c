package archive

import (
	"github.com/agentworkforce/slackarchive/internal/slackapi"
	"github.com/agentworkforce/slackarchive/internal/textfmt"
)

func normalizeMessage(n *textfmt.Normalizer, m slackapi.Message) Message {
	msg := Message{
		TS:      m.TS,
		UserID:  m.User,
		User:    authorName(n, m),
		Text:    n.Text(m.Text),
		Subtype: m.Subtype,
	}
	for _, r := range m.Reactions {
		msg.Reactions = append(msg.Reactions, Reaction{
			Name:  r.Name,
			Emoji: n.Emoji(r.Name),
			Count: r.Count,
			Users: n.UserNames(r.Users),
		})
	}
	return msg
}

func authorName(n *textfmt.Normalizer, m slackapi.Message) string {
	switch {
	case m.User != "":
		return n.UserName(m.User)
	case m.Username != "":
		return m.Username
	case m.BotID != "":
		return "bot(" + m.BotID + ")"
	default:
		return "unknown"
	}
}

// BuildThread normalizes a root message and its replies into a Thread. Any
// reply carrying the root timestamp is dropped.
func BuildThread(n *textfmt.Normalizer, root slackapi.Message, replies []slackapi.Message) Thread {
	thread := Thread{
		Message: normalizeMessage(n, root),
		Replies: make([]Message, 0, len(replies)),
	}
	for _, reply := range replies {
		if reply.TS == root.TS {
			continue
		}
		thread.Replies = append(thread.Replies, normalizeMessage(n, reply))
	}
	return thread
}
