package substitute

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the thesaurus from path whenever the file is written or
// replaced, until ctx is done. It watches the parent directory so that
// editors which save by renaming a temporary file are picked up. A file that
// fails to load or holds no entries is logged and the previous thesaurus stays in use.
//
// Watch blocks; run it in its own goroutine.
func (s *Substituter) Watch(ctx context.Context, path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err = watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("could not watch %s: %w", filepath.Dir(path), err)
	}
	s.logger.InfoContext(ctx, "Watching thesaurus for changes", slog.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			s.reload(ctx, path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.WarnContext(ctx, "Thesaurus watcher error", slog.String("error", err.Error()))
		}
	}
}

func (s *Substituter) reload(ctx context.Context, path string) {
	t, err := LoadThesaurusFile(path)
	if err == nil && t.Len() == 0 {
		err = fmt.Errorf("%w: file holds no entries", ErrInvalidThesaurus)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Could not reload thesaurus, keeping the previous one",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	s.SetThesaurus(t)
	s.logger.InfoContext(ctx, "Thesaurus reloaded",
		slog.String("path", path),
		slog.Int("words", t.Len()),
	)
}
