package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"time"
)

// stamp identifies one version of the config file.
type stamp struct {
	modTime time.Time
	size    int64
	sum     []byte
}

type watcher struct {
	path     string
	last     stamp
	onUpdate func(*Config)
	onError  func(error)
}

// Watch polls the config file every interval and calls onUpdate with the new
// config whenever its content changes. A touched but unchanged file is not
// reloaded. Edits that fail to load go to onError and the previous config
// stays in effect.
func Watch(ctx context.Context, path string, interval time.Duration, onUpdate func(*Config), onError func(error)) error {
	if path == "" {
		path = DefaultPath
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	w := &watcher{path: path, onUpdate: onUpdate, onError: onError}
	first, err := w.read()
	if err != nil {
		return err
	}
	w.last = first

	go w.run(ctx, interval)
	return nil
}

func (w *watcher) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		// Editors often replace the file; the next tick sees it again.
		return
	}
	if info.ModTime().Equal(w.last.modTime) && info.Size() == w.last.size {
		return
	}

	next, err := w.read()
	if err != nil {
		return
	}
	changed := !bytes.Equal(next.sum, w.last.sum)
	w.last = next
	if !changed {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	if w.onUpdate != nil {
		w.onUpdate(cfg)
	}
}

func (w *watcher) read() (stamp, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return stamp{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return stamp{}, err
	}
	sum := sha256.Sum256(data)
	return stamp{modTime: info.ModTime(), size: info.Size(), sum: sum[:]}, nil
}
