package sanctions

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the JSON list at path whenever it is written, created or
// renamed into place. The parent directory is watched so atomic replace by
// rename is observed. Failed reloads are logged and keep the previous list.
// Watching stops when ctx is done or the screener is destroyed.
func (s *Screener) Watch(ctx context.Context, path string, list string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("sanctions: create watcher: %w", err)
	}
	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		_ = w.Close()
		return fmt.Errorf("sanctions: watch %s: %w", target, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	src := FileSource{Path: target, List: list}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := s.UpdateList(ctx, src); err != nil {
					s.log.Warn("sanctions list reload failed, keeping previous list", map[string]any{
						"path":  target,
						"error": err,
					})
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Error("sanctions watcher error", map[string]any{"path": target, "error": err})
			}
		}
	}()
	return nil
}
