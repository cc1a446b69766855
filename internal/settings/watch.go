package settings

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the state file when it changes on disk underneath us
// (an operator editing it by hand). A reload that parses and validates
// is committed and published so the dispatcher rebuilds; one that does
// not is logged and ignored, keeping the last good document.
//
// The watcher self-heals: if fsnotify breaks (editor rename dances,
// filesystem quirks), it is recreated with a small jittered backoff.
// Blocks until ctx is done.
func (st *Store) Watch(ctx context.Context) error {
	dir := filepath.Dir(st.path)
	file := filepath.Base(st.path)

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// debounce to avoid reading partial writes
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			s, err := st.parseFile()
			if err != nil {
				st.log.Warn().Str("path", st.path).Err(err).Msg("state file changed but is not valid; keeping previous")
				return
			}
			if st.commitExternal(s) {
				st.log.Info().Str("path", st.path).Msg("state reloaded from external edit")
			} else {
				st.log.Debug().Str("path", st.path).Msg("state unchanged; skipping reload")
			}
		})
	}

	wait := func() bool {
		d := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err != nil {
			st.log.Warn().Err(err).Str("dir", dir).Msg("state watch init failed")
			if !wait() {
				return nil
			}
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			st.log.Warn().Err(err).Str("dir", dir).Msg("state watch add failed")
			if !wait() {
				return nil
			}
			continue
		}
		backoff = restartBackoffBase
		st.log.Debug().Str("dir", dir).Str("file", file).Msg("state watcher started")

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				// Compare by basename; atomic saves arrive as rename
				// events on some platforms.
				if strings.EqualFold(filepath.Base(ev.Name), file) {
					if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
						debounce()
					}
				}
			case werr, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if werr == nil {
					continue
				}
				st.log.Warn().Err(werr).Str("dir", dir).Msg("state watch error")
				if strings.Contains(strings.ToLower(werr.Error()), "closed") {
					broken = true
				}
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		st.log.Warn().Str("dir", dir).Msg("state watcher stopped; restarting")
		if !wait() {
			return nil
		}
	}
}
