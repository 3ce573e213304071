package plaintext

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reports corpus changes under a directory tree. Bursts of file
// events are collapsed into one CorpusEvent after the debounce window.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger
}

func NewWatcher(root string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{root: root, debounce: debounce, logger: logger}
}

// Watch blocks until ctx is done, calling onChange once per quiet period
// that followed at least one relevant event.
func (w *Watcher) Watch(ctx context.Context, onChange func(context.Context, domain.CorpusEvent)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := ""

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) && !isHidden(filepath.Base(event.Name)) {
				if err := w.addTree(fw, event.Name); err != nil {
					w.logger.Warn("corpus_watch_add_failed", "path", event.Name, "error", err)
				}
			}
			reason, ok := w.relevant(event)
			if !ok {
				continue
			}
			pending = reason
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("corpus_watch_error", "error", err)
		case <-timer.C:
			if pending == "" {
				continue
			}
			w.logger.Info("corpus_change_detected", "root", w.root, "reason", pending)
			onChange(ctx, domain.CorpusEvent{Source: w.root, Reason: pending, CreatedAt: time.Now().UTC()})
			pending = ""
		}
	}
}

// relevant maps an fs event to a rebuild reason. Chmod and hidden or
// unsupported files are ignored.
func (w *Watcher) relevant(event fsnotify.Event) (string, bool) {
	if isHidden(filepath.Base(event.Name)) || !Supported(event.Name) {
		return "", false
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		rel = event.Name
	}
	rel = filepath.ToSlash(rel)
	switch {
	case event.Has(fsnotify.Create):
		return "created " + rel, true
	case event.Has(fsnotify.Write):
		return "updated " + rel, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return "removed " + rel, true
	default:
		return "", false
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
