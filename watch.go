package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"sketch-repair/internal/logger"
	"sketch-repair/internal/pipeline"
	"sketch-repair/internal/report"
	"sketch-repair/internal/types"
)

const watchDebounce = 300 * time.Millisecond

// watchDocument repairs path once, then again each time it changes, until ctx
// is done. The parent directory is watched so editors that save by rename are
// seen. Changes that leave the file as the last repair wrote it are ignored.
func watchDocument(ctx context.Context, p *pipeline.Pipeline, path string, debounce time.Duration, out io.Writer) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return types.NewAppError(types.ErrInvalidInput, "invalid path", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to create file watcher", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return types.NewAppErrorWithDetails(types.ErrInternal, "failed to watch directory", filepath.Dir(abs), err)
	}

	var written [sha256.Size]byte
	repair := func() error {
		res, err := p.Repair(ctx, abs)
		if err != nil {
			return err
		}
		if res.Written {
			written = sha256.Sum256([]byte(res.Repaired))
		}
		fmt.Fprint(out, report.Render(res))
		return nil
	}
	if err := repair(); err != nil {
		return err
	}
	logger.Info("watching for changes", logger.String("path", abs))

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				pending = time.After(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", logger.Err(err))

		case <-pending:
			pending = nil
			data, err := os.ReadFile(abs)
			if err != nil {
				logger.Warn("failed to read changed document", logger.Err(err), logger.String("path", abs))
				continue
			}
			if sha256.Sum256(data) == written {
				logger.Debug("ignoring our own write", logger.String("path", abs))
				continue
			}
			if err := repair(); err != nil {
				logger.Error("repair failed", err, logger.String("path", abs))
			}
		}
	}
}
