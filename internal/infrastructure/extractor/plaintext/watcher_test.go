package plaintext

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

func TestWatcherRelevantEvents(t *testing.T) {
	w := NewWatcher("/corpus", time.Millisecond, nil)
	tests := []struct {
		name   string
		event  fsnotify.Event
		reason string
		ok     bool
	}{
		{"create", fsnotify.Event{Name: "/corpus/a.txt", Op: fsnotify.Create}, "created a.txt", true},
		{"write with chmod", fsnotify.Event{Name: "/corpus/sub/b.md", Op: fsnotify.Write | fsnotify.Chmod}, "updated sub/b.md", true},
		{"remove", fsnotify.Event{Name: "/corpus/a.txt", Op: fsnotify.Remove}, "removed a.txt", true},
		{"rename", fsnotify.Event{Name: "/corpus/a.txt", Op: fsnotify.Rename}, "removed a.txt", true},
		{"chmod only", fsnotify.Event{Name: "/corpus/a.txt", Op: fsnotify.Chmod}, "", false},
		{"hidden", fsnotify.Event{Name: "/corpus/.a.txt.swp", Op: fsnotify.Write}, "", false},
		{"unsupported", fsnotify.Event{Name: "/corpus/a.pdf", Op: fsnotify.Create}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := w.relevant(tt.event)
			if ok != tt.ok || reason != tt.reason {
				t.Fatalf("relevant() = (%q, %v), want (%q, %v)", reason, ok, tt.reason, tt.ok)
			}
		})
	}
}

func TestWatcherDebouncesBurstIntoOneEvent(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan domain.CorpusEvent, 8)
	done := make(chan error, 1)
	w := NewWatcher(root, 100*time.Millisecond, nil)
	go func() {
		done <- w.Watch(ctx, func(_ context.Context, ev domain.CorpusEvent) { events <- ev })
	}()

	// Give the watcher time to register the root.
	time.Sleep(100 * time.Millisecond)
	writeCorpusFile(t, root, "one.txt", "first")
	writeCorpusFile(t, root, "two.txt", "second")
	writeCorpusFile(t, root, "one.txt", "first, edited")

	select {
	case ev := <-events:
		if ev.Source != root || !strings.HasSuffix(ev.Reason, ".txt") {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected a corpus change event")
	}

	select {
	case ev := <-events:
		t.Fatalf("burst must collapse into one event, got extra %+v", ev)
	case <-time.After(400 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
}
