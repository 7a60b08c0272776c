package archivestore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentworkforce/slackarchive/internal/archive"
)

func sampleArchive() *archive.Archive {
	a := archive.New()
	a.Merge("general", archive.Thread{
		Message: archive.Message{TS: "10.0", User: "Alice", Text: "hello"},
		Replies: []archive.Message{{TS: "10.5", User: "Bob", Text: "hi"}},
	})
	a.Ensure("quiet")
	return a
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "archive.json")
	store, err := Open("file://"+path, Options{})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if local, ok := store.LocalPath(); !ok || local != path {
		t.Fatalf("expected local path %s, got %s %v", path, local, ok)
	}
	ctx := context.Background()
	if err := store.Save(ctx, sampleArchive()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := store.Require(ctx)
	if err != nil {
		t.Fatalf("require failed: %v", err)
	}
	first, _ := os.ReadFile(path)
	if err := store.Save(ctx, loaded); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	second, _ := os.ReadFile(path)
	if !bytes.Equal(first, second) {
		t.Fatalf("expected stable bytes across load and save")
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, got %d entries", len(entries))
	}
}

func TestMissingArchivePolicies(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "absent.json"), Options{})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	a, err := store.LoadOrEmpty(context.Background())
	if err != nil || a == nil || len(a.ChannelNames()) != 0 {
		t.Fatalf("expected empty archive for sync, got %v %v", a, err)
	}
	if _, err := store.Require(context.Background()); !errors.Is(err, ErrArchiveNotFound) {
		t.Fatalf("expected ErrArchiveNotFound for render, got %v", err)
	}
}

func TestMalformedArchivePolicies(t *testing.T) {
	cases := map[string]string{
		"not json":      "{",
		"empty file":    "",
		"wrong shape":   `{"general": {"10.0": {"message": {"ts": "10.0"}}}}`,
		"bad timestamp": `{"general": {"yesterday": {"message": {"ts": "yesterday", "user": "a", "text": "b"}, "replies": []}}}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "archive.json")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write fixture: %v", err)
			}
			store, err := Open(path, Options{})
			if err != nil {
				t.Fatalf("open failed: %v", err)
			}
			if _, err := store.Require(context.Background()); !errors.Is(err, ErrMalformedArchive) {
				t.Fatalf("expected ErrMalformedArchive, got %v", err)
			}
			a, err := store.LoadOrEmpty(context.Background())
			if err != nil || len(a.ChannelNames()) != 0 {
				t.Fatalf("expected empty start on sync, got %v %v", a, err)
			}
			backups, _ := filepath.Glob(path + ".malformed-*")
			if len(backups) != 1 {
				t.Fatalf("expected one backup of the malformed archive, got %v", backups)
			}
			kept, _ := os.ReadFile(backups[0])
			if string(kept) != content {
				t.Fatalf("expected backup to hold the original bytes, got %q", kept)
			}
			if err := store.Save(context.Background(), a); err != nil {
				t.Fatalf("save failed: %v", err)
			}
			if kept, _ := os.ReadFile(backups[0]); string(kept) != content {
				t.Fatalf("expected backup to survive a save, got %q", kept)
			}
		})
	}
}

func TestMalformedArchiveWithoutBackupIsNotReplaced(t *testing.T) {
	snapshots := NewMemorySnapshots()
	ctx := context.Background()
	if err := snapshots.WriteSnapshot(ctx, []byte("{")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	store, err := NewStore("memory://", snapshots, Options{})
	if err != nil {
		t.Fatalf("new store failed: %v", err)
	}
	if _, err := store.LoadOrEmpty(ctx); !errors.Is(err, ErrMalformedArchive) {
		t.Fatalf("expected ErrMalformedArchive when no copy can be kept, got %v", err)
	}
	data, _ := snapshots.ReadSnapshot(ctx)
	if string(data) != "{" {
		t.Fatalf("expected document to stay untouched, got %q", data)
	}
}

func TestMessagesWithoutAuthorLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.json")
	content := `{"general":{"1600000000.000100":{"message":{"ts":"1600000000.000100","text":"from another tool"},"replies":[]}}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	store, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	a, err := store.LoadOrEmpty(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	c, _ := a.Channel("general")
	if !c.Has("1600000000.000100") {
		t.Fatalf("expected the existing thread to be kept")
	}
	if backups, _ := filepath.Glob(path + ".malformed-*"); len(backups) != 0 {
		t.Fatalf("expected no backup for a valid archive, got %v", backups)
	}
}

func TestWriteFileAtomicFailureLeavesOriginalContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.json")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}
	defer os.Chmod(dir, 0o755)
	if err := writeFileAtomic(path, []byte("replacement"), 0o644); err == nil {
		t.Fatalf("expected write to fail in read-only directory")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "original" {
		t.Fatalf("expected original content, got %q", data)
	}
}

func TestMemoryStore(t *testing.T) {
	store, err := Open("memory://", Options{})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	ctx := context.Background()
	if a, err := store.Load(ctx); err != nil || a != nil {
		t.Fatalf("expected nothing stored yet, got %v %v", a, err)
	}
	if err := store.Save(ctx, sampleArchive()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := store.Require(ctx)
	if err != nil {
		t.Fatalf("require failed: %v", err)
	}
	if loaded.ThreadCount() != 1 {
		t.Fatalf("expected 1 thread, got %d", loaded.ThreadCount())
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	store, err := Open("sqlite://"+path, Options{})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	if a, err := store.Load(ctx); err != nil || a != nil {
		t.Fatalf("expected empty database, got %v %v", a, err)
	}
	a := sampleArchive()
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	a.Merge("general", archive.Thread{Message: archive.Message{TS: "11.0", User: "Bob", Text: "again"}})
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	loaded, err := store.Require(ctx)
	if err != nil {
		t.Fatalf("require failed: %v", err)
	}
	if loaded.ThreadCount() != 2 {
		t.Fatalf("expected 2 threads after upsert, got %d", loaded.ThreadCount())
	}
}

func TestSQLiteBackupKeepsMalformedDocument(t *testing.T) {
	snapshots, err := NewSQLiteSnapshots(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { _ = snapshots.Close() })
	ctx := context.Background()
	if err := snapshots.WriteSnapshot(ctx, []byte("not json")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	store, err := NewStore("sqlite://archive.db", snapshots, Options{})
	if err != nil {
		t.Fatalf("new store failed: %v", err)
	}
	if _, err := store.LoadOrEmpty(ctx); err != nil {
		t.Fatalf("expected empty start after backup, got %v", err)
	}
	var backups int
	if err := snapshots.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM archive_snapshots WHERE archive_key LIKE 'default.malformed-%' AND snapshot = 'not json'",
	).Scan(&backups); err != nil {
		t.Fatalf("count backups: %v", err)
	}
	if backups != 1 {
		t.Fatalf("expected one backup row, got %d", backups)
	}
}

func TestBuildSnapshotStoreFromDSN(t *testing.T) {
	if s, err := BuildSnapshotStoreFromDSN(""); err != nil || s != nil {
		t.Fatalf("expected nil store for empty dsn")
	}
	s, err := BuildSnapshotStoreFromDSN("file://data/archive.json")
	if err != nil {
		t.Fatalf("build file store failed: %v", err)
	}
	if f, ok := s.(*FileSnapshots); !ok || f.Path != "data/archive.json" {
		t.Fatalf("unexpected file store %#v", s)
	}
	if _, err := BuildSnapshotStoreFromDSN("postgres://localhost/slackarchive?sslmode=disable"); err != nil {
		t.Fatalf("expected postgres store to be available, got %v", err)
	}
	if _, err := BuildSnapshotStoreFromDSN("mysql://localhost/slackarchive"); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented for mysql, got %v", err)
	}
	if _, err := BuildSnapshotStoreFromDSN("s3://bucket/archive.json"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}

func TestRegisterSnapshotFactory(t *testing.T) {
	scheme := "teststore"
	mem := NewMemorySnapshots()
	RegisterSnapshotFactory(scheme, func(dsn string) (SnapshotStore, error) {
		return mem, nil
	})
	s, err := BuildSnapshotStoreFromDSN(scheme + "://anything")
	if err != nil {
		t.Fatalf("build registered store failed: %v", err)
	}
	if s != mem {
		t.Fatalf("expected registered factory to be used")
	}
}

func TestValidatorAcceptsEncodedArchive(t *testing.T) {
	v, err := DefaultValidator()
	if err != nil {
		t.Fatalf("validator failed: %v", err)
	}
	a := sampleArchive()
	a.Merge("general", archive.Thread{Message: archive.Message{
		TS: "12.0", User: "Alice", Text: "x",
		Reactions: []archive.Reaction{{Name: "tada", Emoji: "🎉", Count: 1}},
	}})
	data, err := archive.Encode(a)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := v.Validate(data); err != nil {
		t.Fatalf("expected encoded archive to validate, got %v", err)
	}
}
