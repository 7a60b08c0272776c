// Package legacy imports archives written in the old loose-file layout: one
// <channel>_users.json and one <channel>_replies.json per channel, the
// replies file mapping a root timestamp to [root, reply, reply...].
package legacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/agentworkforce/slackarchive/internal/archive"
	"github.com/agentworkforce/slackarchive/internal/logging"
	"github.com/agentworkforce/slackarchive/internal/slackapi"
	"github.com/agentworkforce/slackarchive/internal/textfmt"
)

var ErrNoInput = errors.New("no legacy files matched")

const (
	usersSuffix   = "_users.json"
	repliesSuffix = "_replies.json"
)

type Converter struct {
	emoji  *textfmt.EmojiTable
	logger *zap.Logger
}

type Result struct {
	Channels []string
	Skipped  []string
	Threads  int
}

func NewConverter(emoji *textfmt.EmojiTable, logger *zap.Logger) *Converter {
	return &Converter{emoji: emoji, logger: logging.OrNop(logger)}
}

type channelFiles struct {
	name    string
	dir     string
	users   bool
	replies bool
}

// Convert merges every channel matched by pattern into a. A channel missing
// either of its two files is skipped with a warning.
func (c *Converter) Convert(pattern string, a *archive.Archive) (Result, error) {
	var result Result
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return result, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	groups := map[string]*channelFiles{}
	for _, path := range matches {
		base := filepath.Base(path)
		var name string
		isUsers := strings.HasSuffix(base, usersSuffix)
		switch {
		case isUsers:
			name = strings.TrimSuffix(base, usersSuffix)
		case strings.HasSuffix(base, repliesSuffix):
			name = strings.TrimSuffix(base, repliesSuffix)
		default:
			continue
		}
		if name == "" {
			continue
		}
		dir := filepath.Dir(path)
		key := filepath.Join(dir, name)
		group, ok := groups[key]
		if !ok {
			group = &channelFiles{name: name, dir: dir}
			groups[key] = group
		}
		if isUsers {
			group.users = true
		} else {
			group.replies = true
		}
	}
	if len(groups) == 0 {
		return result, fmt.Errorf("%w: %s", ErrNoInput, pattern)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		group := groups[key]
		if !group.users || !group.replies {
			missing := "users"
			if group.users {
				missing = "messages"
			}
			c.logger.Warn("skipping channel with incomplete files",
				zap.String("channel", group.name),
				zap.String("missing", missing),
			)
			result.Skipped = append(result.Skipped, group.name)
			continue
		}
		added, err := c.convertChannel(group, a)
		if err != nil {
			return result, err
		}
		result.Channels = append(result.Channels, group.name)
		result.Threads += added
		c.logger.Info("converted channel", zap.String("channel", group.name), zap.Int("threads", added))
	}
	return result, nil
}

func (c *Converter) convertChannel(group *channelFiles, a *archive.Archive) (int, error) {
	var users []slackapi.User
	if err := readJSON(filepath.Join(group.dir, group.name+usersSuffix), &users); err != nil {
		return 0, err
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.DisplayName()
	}
	var threads map[string][]slackapi.Message
	if err := readJSON(filepath.Join(group.dir, group.name+repliesSuffix), &threads); err != nil {
		return 0, err
	}

	n := textfmt.NewNormalizer(textfmt.Directory{Users: names}, c.emoji)
	converted := make([]archive.Thread, 0, len(threads))
	for ts, messages := range threads {
		if !archive.ValidTS(ts) || len(messages) == 0 {
			c.logger.Warn("skipping unusable thread", zap.String("channel", group.name), zap.String("ts", ts))
			continue
		}
		root := messages[0]
		if root.TS == "" {
			root.TS = ts
		}
		if root.TS != ts {
			c.logger.Warn("thread key does not match its root message",
				zap.String("channel", group.name),
				zap.String("ts", ts),
				zap.String("root_ts", root.TS),
			)
			continue
		}
		converted = append(converted, archive.BuildThread(n, root, messages[1:]))
	}
	added := a.Merge(group.name, converted...)
	return added, nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
