// Package archive holds the workspace archive model and the sync pipeline
// that grows it: a retrying executor, a cursor paginator and the per-channel
// orchestrator.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

type Reaction struct {
	Name  string   `json:"name"`
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

type Message struct {
	TS        string     `json:"ts"`
	UserID    string     `json:"user_id,omitempty"`
	User      string     `json:"user"`
	Text      string     `json:"text"`
	Subtype   string     `json:"subtype,omitempty"`
	Reactions []Reaction `json:"reactions,omitempty"`
}

// Thread is a root message with its replies in ascending timestamp order.
// The root itself never appears in Replies.
type Thread struct {
	Message Message   `json:"message"`
	Replies []Message `json:"replies"`
}

// Channel is one channel's threads keyed by root timestamp, kept sorted.
// Timestamps that differ only in zero padding name the same thread; the
// first spelling stored is the one kept.
type Channel struct {
	threads map[string]Thread
	keys    map[string]string
	order   []string
}

func newChannel() *Channel {
	return &Channel{threads: map[string]Thread{}, keys: map[string]string{}}
}

func (c *Channel) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

func (c *Channel) Has(ts string) bool {
	if c == nil {
		return false
	}
	_, ok := c.keys[CanonicalTS(ts)]
	return ok
}

func (c *Channel) Thread(ts string) (Thread, bool) {
	if c == nil {
		return Thread{}, false
	}
	key, ok := c.keys[CanonicalTS(ts)]
	if !ok {
		return Thread{}, false
	}
	return c.threads[key], true
}

// Timestamps returns the thread keys in ascending numeric order.
func (c *Channel) Timestamps() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.order)
}

// Threads returns the threads in ascending numeric order.
func (c *Channel) Threads() []Thread {
	if c == nil {
		return nil
	}
	out := make([]Thread, 0, len(c.order))
	for _, ts := range c.order {
		out = append(out, c.threads[ts])
	}
	return out
}

func (c *Channel) insert(thread Thread) bool {
	ts := thread.Message.TS
	canonical := CanonicalTS(ts)
	if _, exists := c.keys[canonical]; exists {
		return false
	}
	thread.Replies = sortedReplies(thread.Replies)
	c.keys[canonical] = ts
	c.threads[ts] = thread
	idx := sort.Search(len(c.order), func(i int) bool {
		return CompareTS(c.order[i], ts) >= 0
	})
	c.order = slices.Insert(c.order, idx, ts)
	return true
}

func sortedReplies(replies []Message) []Message {
	out := make([]Message, len(replies))
	copy(out, replies)
	sort.SliceStable(out, func(i, j int) bool {
		return CompareTS(out[i].TS, out[j].TS) < 0
	})
	return out
}

func (c *Channel) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ts := range c.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ts)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		thread := c.threads[ts]
		if thread.Replies == nil {
			thread.Replies = []Message{}
		}
		value, err := json.Marshal(thread)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Channel) UnmarshalJSON(data []byte) error {
	var raw map[string]Thread
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	keys := make([]string, 0, len(raw))
	for ts := range raw {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool {
		if order := CompareTS(keys[i], keys[j]); order != 0 {
			return order < 0
		}
		return keys[i] < keys[j]
	})
	fresh := newChannel()
	for _, ts := range keys {
		thread := raw[ts]
		if !ValidTS(ts) {
			return fmt.Errorf("invalid thread timestamp %q", ts)
		}
		if thread.Message.TS == "" {
			thread.Message.TS = ts
		}
		if thread.Message.TS != ts {
			return fmt.Errorf("thread %q holds message %q", ts, thread.Message.TS)
		}
		fresh.insert(thread)
	}
	*c = *fresh
	return nil
}

// Archive maps channel names to their threads. It is not safe for
// concurrent mutation; the syncer is its single writer.
type Archive struct {
	channels map[string]*Channel
}

func New() *Archive {
	return &Archive{channels: map[string]*Channel{}}
}

func (a *Archive) Channel(name string) (*Channel, bool) {
	c, ok := a.channels[name]
	return c, ok
}

// ChannelNames returns every channel name in sorted order.
func (a *Archive) ChannelNames() []string {
	names := make([]string, 0, len(a.channels))
	for name := range a.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KnownTimestamps returns the canonical forms of the root timestamps already
// archived for a channel. An unknown channel yields an empty set.
func (a *Archive) KnownTimestamps(name string) map[string]struct{} {
	c := a.channels[name]
	known := make(map[string]struct{}, c.Len())
	if c == nil {
		return known
	}
	for canonical := range c.keys {
		known[canonical] = struct{}{}
	}
	return known
}

// Ensure records a channel, possibly with no threads, so it appears in the
// archive even when nothing could be fetched for it.
func (a *Archive) Ensure(name string) *Channel {
	c, ok := a.channels[name]
	if !ok {
		c = newChannel()
		a.channels[name] = c
	}
	return c
}

// Merge adds threads whose root timestamp is not yet archived and returns how
// many were added. Existing threads are never replaced or removed.
func (a *Archive) Merge(name string, threads ...Thread) int {
	c := a.Ensure(name)
	added := 0
	for _, thread := range threads {
		if c.insert(thread) {
			added++
		}
	}
	return added
}

// ThreadCount is the total number of threads across channels.
func (a *Archive) ThreadCount() int {
	total := 0
	for _, c := range a.channels {
		total += c.Len()
	}
	return total
}

func (a *Archive) MarshalJSON() ([]byte, error) {
	if a == nil || a.channels == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a.channels)
}

func (a *Archive) UnmarshalJSON(data []byte) error {
	var raw map[string]*Channel
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	channels := make(map[string]*Channel, len(raw))
	for name, c := range raw {
		if c == nil {
			c = newChannel()
		}
		channels[name] = c
	}
	a.channels = channels
	return nil
}

// Encode renders the archive as indented JSON with sorted channel names and
// thread keys in ascending numeric order. Equal archives encode to equal bytes.
func Encode(a *Archive) ([]byte, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func Decode(data []byte) (*Archive, error) {
	a := New()
	if err := json.Unmarshal(data, a); err != nil {
		return nil, err
	}
	return a, nil
}
