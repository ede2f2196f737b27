package index

import (
	"log/slog"

	"github.com/kukula/lattice/internal/engine"
	"github.com/kukula/lattice/internal/storage"
)

// Event kinds passed to an EventCallback.
const (
	EventValidated = "validated"
	EventFailed    = "failed"
	EventDeleted   = "deleted"
)

// EventCallback is called after a sync- or watcher-driven index change.
// run is nil for deletions.
type EventCallback func(kind, path string, run *RunRow)

// IndexFile validates data as the model file at path and records the run.
func IndexFile(db ModelIndex, eng *engine.Engine, path string, data []byte) (*Record, *engine.Result, error) {
	rec, res := Validate(eng, path, data)
	if err := db.Record(rec); err != nil {
		return nil, nil, err
	}
	return rec, res, nil
}

// Sync walks the workspace and brings the index up to date:
//   - new/changed model files are validated and recorded
//   - files removed from disk are deleted from the index
func Sync(db ModelIndex, store storage.Provider, eng *engine.Engine, logger *slog.Logger, cb EventCallback) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if cs, ok := checksums[m.Path]; ok && cs == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		rec, _, err := IndexFile(db, eng, m.Path, data)
		if err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: validated", slog.String("path", m.Path), slog.Bool("valid", rec.Run.Valid))
		notify(cb, rec)
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.Delete(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
				if cb != nil {
					cb(EventDeleted, p, nil)
				}
			}
		}
	}

	return nil
}

func notify(cb EventCallback, rec *Record) {
	if cb == nil {
		return
	}
	kind := EventValidated
	if rec.Run.Failed() {
		kind = EventFailed
	}
	run := rec.Run
	cb(kind, run.Path, &run)
}
