package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"versionvibe/config"
	"versionvibe/logger"
	"versionvibe/model"
	"versionvibe/repository"
	"versionvibe/storage"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long a file must stop growing before it is
// treated as fully written. Uploads land over time; acting on the
// first write event would ship a truncated object.
const settleDelay = 2 * time.Second

var audioExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".aiff": "audio/aiff",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
}

// Watcher confirms uploads: it watches the staging directory for
// settled audio files laid out as <ingestDir>/<trackID>/<name>, puts
// each into object storage, creates the version row with the next
// version number, and removes the staged file.
type Watcher struct {
	cfg      *config.Config
	versions repository.VersionRepository
	watcher  *fsnotify.Watcher
	done     chan struct{}

	// OnVersionCreated, when set, is invoked after each confirmed
	// upload so live sessions can pick the new version up.
	OnVersionCreated func(trackID int64)
}

// NewWatcher creates a watcher over the configured staging directory.
func NewWatcher(cfg *config.Config, versions repository.VersionRepository) (*Watcher, error) {
	if err := os.MkdirAll(cfg.IngestDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ingest dir: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}
	if err := fsWatcher.Add(cfg.IngestDir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch ingest dir: %w", err)
	}

	// Track subdirectories already present at startup.
	entries, err := os.ReadDir(cfg.IngestDir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				fsWatcher.Add(filepath.Join(cfg.IngestDir, entry.Name()))
			}
		}
	}

	return &Watcher{
		cfg:      cfg,
		versions: versions,
		watcher:  fsWatcher,
		done:     make(chan struct{}),
	}, nil
}

// Run consumes filesystem events until Stop is called.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("ingest watcher error", logger.ErrorField(err))

		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	if info.IsDir() {
		// A new track staging directory; watch it too.
		if event.Op&fsnotify.Create != 0 {
			if err := w.watcher.Add(event.Name); err != nil {
				logger.Warn("failed to watch track dir",
					logger.String("dir", event.Name),
					logger.ErrorField(err))
			}
		}
		return
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	if _, ok := audioExtensions[ext]; !ok {
		return
	}

	go w.confirmWhenSettled(ctx, event.Name)
}

// confirmWhenSettled waits for the file to stop growing, then runs
// the confirmation. Duplicate events for the same path are harmless:
// the second pass finds the file gone and stops.
func (w *Watcher) confirmWhenSettled(ctx context.Context, path string) {
	var lastSize int64 = -1
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case <-time.After(settleDelay):
		}

		info, err := os.Stat(path)
		if err != nil {
			return // already picked up or removed
		}
		if info.Size() == lastSize {
			break
		}
		lastSize = info.Size()
	}

	if err := w.confirm(ctx, path); err != nil {
		logger.Error("upload confirmation failed",
			logger.String("file", path),
			logger.ErrorField(err))
	}
}

func (w *Watcher) confirm(ctx context.Context, path string) error {
	rel, err := filepath.Rel(w.cfg.IngestDir, path)
	if err != nil {
		return fmt.Errorf("file outside ingest dir: %w", err)
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return fmt.Errorf("unexpected staging layout for %s, want <trackID>/<file>", rel)
	}

	trackID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return fmt.Errorf("staging dir %s is not a track id: %w", parts[0], err)
	}
	fileName := parts[1]
	ext := strings.ToLower(filepath.Ext(fileName))

	number, err := w.versions.NextVersionNumber(trackID)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open staged file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat staged file: %w", err)
	}

	objectKey := fmt.Sprintf("tracks/%d/v%d/%s", trackID, number, fileName)
	if err := storage.UploadAudio(ctx, w.cfg, objectKey, file, info.Size(), audioExtensions[ext]); err != nil {
		return err
	}

	name := strings.TrimSuffix(fileName, ext)
	version := &model.Version{
		TrackID:       trackID,
		VersionNumber: number,
		Name:          name,
		StoragePath:   objectKey,
	}
	if err := w.versions.Create(version); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		logger.Warn("failed to remove staged file",
			logger.String("file", path),
			logger.ErrorField(err))
	}

	logger.Info("version created from upload",
		logger.Int64("track", trackID),
		logger.Int("version", number),
		logger.String("object", objectKey))

	if w.OnVersionCreated != nil {
		w.OnVersionCreated(trackID)
	}
	return nil
}
