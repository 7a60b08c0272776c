package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agentworkforce/slackarchive/internal/archive"
)

func fixedNow() time.Time {
	return time.Date(2024, 4, 5, 12, 0, 0, 0, time.UTC)
}

func sampleArchive() *archive.Archive {
	a := archive.New()
	a.Merge("general", archive.Thread{
		Message: archive.Message{
			TS:   "1712345678.000100",
			User: "Alice",
			Text: `see <a href="https://example.com/a?b=1">docs</a> &lt;b&gt;not bold&lt;/b&gt; <not_a_real_emoji>`,
			Reactions: []archive.Reaction{
				{Name: "tada", Emoji: "🎉", Count: 2, Users: []string{"Bob", "Carol"}},
			},
		},
		Replies: []archive.Message{{TS: "1712345679.000200", User: "Bob", Text: "reply"}},
	})
	a.Ensure("quiet")
	return a
}

func TestRenderWritesPages(t *testing.T) {
	out := t.TempDir()
	r, err := New(Options{Title: "Acme", Now: fixedNow})
	if err != nil {
		t.Fatalf("new renderer failed: %v", err)
	}
	if err := r.Render(sampleArchive(), out); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	for _, name := range []string{"index.html", "general.html", "quiet.html", "static/reactions.js", "static/style.css"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
	index, _ := os.ReadFile(filepath.Join(out, "index.html"))
	if !strings.Contains(string(index), `href="general.html"`) || !strings.Contains(string(index), "no messages") {
		t.Fatalf("unexpected index:\n%s", index)
	}
	page, _ := os.ReadFile(filepath.Join(out, "general.html"))
	html := string(page)
	if !strings.Contains(html, `<a href="https://example.com/a?b=1" rel="noopener">docs</a>`) {
		t.Fatalf("expected anchor to survive:\n%s", html)
	}
	if !strings.Contains(html, "&lt;b&gt;not bold&lt;/b&gt;") || strings.Contains(html, "<b>") {
		t.Fatalf("expected message markup to be escaped once:\n%s", html)
	}
	if !strings.Contains(html, "&lt;not_a_real_emoji&gt;") {
		t.Fatalf("expected unknown emoji marker to stay visible:\n%s", html)
	}
	if !strings.Contains(html, `data-users="Bob,Carol"`) {
		t.Fatalf("expected reactor list for hover script:\n%s", html)
	}
	if strings.Index(html, "Alice") > strings.Index(html, "reply") {
		t.Fatalf("expected root before replies")
	}
}

func TestChannelFile(t *testing.T) {
	cases := map[string]string{
		"general":   "general.html",
		"dev-ops_2": "dev-ops_2.html",
		"../etc":    "___etc-be7a585c.html",
		"index":     "index-090aa9ab.html",
		"":          "channel-811c9dc5.html",
		"café":      "caf_-a82b5049.html",
		"日本":        "__-9f26ee51.html",
	}
	for in, want := range cases {
		if got := ChannelFile(in); got != want {
			t.Fatalf("ChannelFile(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChannelFileKeepsRewrittenNamesApart(t *testing.T) {
	names := []string{"café", "cafè", "caf_", "日本", "한국", "__", "index", "index_channel"}
	seen := map[string]string{}
	for _, name := range names {
		file := ChannelFile(name)
		if prev, ok := seen[file]; ok {
			t.Fatalf("channels %q and %q both render to %s", prev, name, file)
		}
		seen[file] = name
	}
}

func TestRenderWritesOnePagePerNonASCIIChannel(t *testing.T) {
	a := archive.New()
	a.Merge("日本", archive.Thread{Message: archive.Message{TS: "1.0", User: "Alice", Text: "one"}})
	a.Merge("한국", archive.Thread{Message: archive.Message{TS: "2.0", User: "Bob", Text: "two"}})
	out := t.TempDir()
	r, err := New(Options{Now: fixedNow})
	if err != nil {
		t.Fatalf("new renderer failed: %v", err)
	}
	if err := r.Render(a, out); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	for name, text := range map[string]string{"日本": "one", "한국": "two"} {
		data, err := os.ReadFile(filepath.Join(out, ChannelFile(name)))
		if err != nil {
			t.Fatalf("read page for %s: %v", name, err)
		}
		if !strings.Contains(string(data), text) {
			t.Fatalf("expected page for %s to hold its own messages", name)
		}
	}
}

func TestMessageHTMLRejectsUnexpectedAnchors(t *testing.T) {
	got := string(messageHTML(`<a href="javascript:alert(1)">x</a>`))
	if strings.Contains(got, "<a") {
		t.Fatalf("expected non-link anchor to be escaped, got %s", got)
	}
}

func TestWatchRendersInitially(t *testing.T) {
	out := t.TempDir()
	r, err := New(Options{Now: fixedNow})
	if err != nil {
		t.Fatalf("new renderer failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := filepath.Join(t.TempDir(), "archive.json")
	load := func(ctx context.Context) (*archive.Archive, error) { return sampleArchive(), nil }
	if err := r.Watch(ctx, path, load, out); err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "general.html")); err != nil {
		t.Fatalf("expected initial render: %v", err)
	}
}
