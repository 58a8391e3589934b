package archive

import (
	"context"
	"sync"
	"time"

	"keytrail/internal/recorder"
)

const autoSaveTimeout = 10 * time.Second

// AutoSaver archives every session of a Recorder when it stops.
type AutoSaver struct {
	store *Store
	rec   *recorder.Recorder
	wg    sync.WaitGroup
}

// AutoSave registers a state observer on rec that saves stopped sessions to
// the store. Saves run off the recorder goroutine.
func AutoSave(rec *recorder.Recorder, store *Store) *AutoSaver {
	a := &AutoSaver{store: store, rec: rec}
	rec.OnState(a.onState)
	return a
}

func (a *AutoSaver) onState(info recorder.Info) {
	if info.State != recorder.Stopped || info.Moves == 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		h := a.rec.GetHistory()
		if h.ID() != info.ID {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), autoSaveTimeout)
		defer cancel()
		if _, err := a.store.SaveSession(ctx, h, ""); err != nil {
			a.store.logger.Warn("auto-save failed", "id", info.ID, "error", err)
		}
	}()
}

// Wait blocks until pending saves finish.
func (a *AutoSaver) Wait() {
	a.wg.Wait()
}
