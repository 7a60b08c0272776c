// Package render writes a browsable static HTML copy of an archive: an index
// page, one page per channel, and the assets those pages load.
package render

import (
	"embed"
	"fmt"
	"hash/fnv"
	"html"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentworkforce/slackarchive/internal/archive"
	"github.com/agentworkforce/slackarchive/internal/logging"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

type Options struct {
	Title  string
	Logger *zap.Logger
	// Now stamps the index page; defaults to time.Now.
	Now func() time.Time
}

type Renderer struct {
	templates *template.Template
	title     string
	logger    *zap.Logger
	now       func() time.Time
}

func New(opts Options) (*Renderer, error) {
	tmpl, err := template.New("").ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = "Workspace archive"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Renderer{
		templates: tmpl,
		title:     title,
		logger:    logging.OrNop(opts.Logger),
		now:       now,
	}, nil
}

type indexPage struct {
	Title     string
	Generated string
	Channels  []channelSummary
}

type channelSummary struct {
	Name         string
	File         string
	Threads      int
	Replies      int
	LastActivity string
}

type channelPage struct {
	Title   string
	Name    string
	Threads []threadView
}

type threadView struct {
	Message messageView
	Replies []messageView
}

type messageView struct {
	TS        string
	User      string
	Time      string
	ISOTime   string
	Text      template.HTML
	Reactions []reactionView
}

type reactionView struct {
	Name  string
	Emoji string
	Count int
	Users string
}

// Render writes index.html, one page per channel and the static assets into
// outDir, creating it when needed.
func (r *Renderer) Render(a *archive.Archive, outDir string) error {
	if a == nil {
		return fmt.Errorf("archive is required")
	}
	if err := os.MkdirAll(filepath.Join(outDir, "static"), 0o755); err != nil {
		return err
	}
	if err := writeStatic(outDir); err != nil {
		return err
	}

	index := indexPage{Title: r.title, Generated: r.now().UTC().Format(time.RFC1123)}
	for _, name := range a.ChannelNames() {
		channel, _ := a.Channel(name)
		page := channelPage{Title: r.title, Name: name}
		summary := channelSummary{Name: name, File: ChannelFile(name)}
		for _, thread := range channel.Threads() {
			view := threadView{Message: newMessageView(thread.Message)}
			for _, reply := range thread.Replies {
				view.Replies = append(view.Replies, newMessageView(reply))
			}
			summary.Threads++
			summary.Replies += len(thread.Replies)
			summary.LastActivity = view.Message.Time
			page.Threads = append(page.Threads, view)
		}
		if err := r.writePage(filepath.Join(outDir, summary.File), "channel.html", page); err != nil {
			return err
		}
		index.Channels = append(index.Channels, summary)
	}
	if err := r.writePage(filepath.Join(outDir, "index.html"), "index.html", index); err != nil {
		return err
	}
	r.logger.Info("archive rendered",
		zap.String("out", outDir),
		zap.Int("channels", len(index.Channels)),
	)
	return nil
}

func (r *Renderer) writePage(path, name string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.templates.ExecuteTemplate(f, name, data); err != nil {
		_ = f.Close()
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func writeStatic(outDir string) error {
	return fs.WalkDir(staticFS, "static", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := staticFS.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(outDir, filepath.FromSlash(path)), data, 0o644)
	})
}

// ChannelFile is the page name for a channel. Names that had to be rewritten
// to be file-safe carry a hash of the original, so distinct channels never
// share a page.
func ChannelFile(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		b.WriteString("channel")
	}
	if b.String() != name || name == "index" {
		h := fnv.New32a()
		_, _ = h.Write([]byte(name))
		fmt.Fprintf(&b, "-%08x", h.Sum32())
	}
	return b.String() + ".html"
}

func newMessageView(m archive.Message) messageView {
	view := messageView{TS: m.TS, User: m.User, Text: messageHTML(m.Text)}
	if whole, _, _ := strings.Cut(m.TS, "."); whole != "" {
		if sec, err := strconv.ParseInt(whole, 10, 64); err == nil {
			t := time.Unix(sec, 0).UTC()
			view.Time = t.Format("2006-01-02 15:04 MST")
			view.ISOTime = t.Format(time.RFC3339)
		}
	}
	for _, reaction := range m.Reactions {
		view.Reactions = append(view.Reactions, reactionView{
			Name:  reaction.Name,
			Emoji: reaction.Emoji,
			Count: reaction.Count,
			Users: strings.Join(reaction.Users, ","),
		})
	}
	return view
}

// messageHTML keeps the anchors produced during normalization and escapes
// everything else. Message text arrives with &, < and > already entity
// encoded, so it is decoded once before escaping.
func messageHTML(text string) template.HTML {
	var b strings.Builder
	for text != "" {
		start := strings.Index(text, `<a href="`)
		if start < 0 {
			b.WriteString(escapeText(text))
			break
		}
		end := strings.Index(text[start:], "</a>")
		if end < 0 {
			b.WriteString(escapeText(text))
			break
		}
		end += start + len("</a>")
		b.WriteString(escapeText(text[:start]))
		b.WriteString(safeAnchor(text[start:end]))
		text = text[end:]
	}
	return template.HTML(b.String())
}

func escapeText(s string) string {
	return html.EscapeString(html.UnescapeString(s))
}

func safeAnchor(anchor string) string {
	rest := strings.TrimPrefix(anchor, `<a href="`)
	href, rest, ok := strings.Cut(rest, `">`)
	if !ok {
		return escapeText(anchor)
	}
	label := strings.TrimSuffix(rest, "</a>")
	lower := strings.ToLower(href)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") &&
		!strings.HasPrefix(lower, "ftp://") && !strings.HasPrefix(lower, "mailto:") {
		return escapeText(anchor)
	}
	return `<a href="` + html.EscapeString(html.UnescapeString(href)) + `" rel="noopener">` + escapeText(label) + `</a>`
}
