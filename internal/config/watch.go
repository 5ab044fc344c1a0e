package config

import (
	"context"
	"os"
	"time"
)

// Watcher polls a config file and reloads it when its modification time advances.
type Watcher[T any] struct {
	Path     string
	Interval time.Duration
	Load     func(path string) (T, error)
	OnUpdate func(T)
	// OnError receives reload failures; the previous config stays in effect.
	OnError func(error)
}

// Start loads the file once synchronously, then polls in the background until ctx is done.
func (w *Watcher[T]) Start(ctx context.Context) error {
	if w.Interval <= 0 {
		w.Interval = 30 * time.Second
	}

	cfg, err := w.Load(w.Path)
	if err != nil {
		return err
	}
	info, err := os.Stat(w.Path)
	if err != nil {
		return err
	}
	w.update(cfg)

	go w.poll(ctx, info.ModTime())
	return nil
}

func (w *Watcher[T]) poll(ctx context.Context, lastMod time.Time) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(w.Path)
			if err != nil || !info.ModTime().After(lastMod) {
				continue
			}
			cfg, err := w.Load(w.Path)
			if err != nil {
				if w.OnError != nil {
					w.OnError(err)
				}
				// Retry only after the next edit.
				lastMod = info.ModTime()
				continue
			}
			lastMod = info.ModTime()
			w.update(cfg)
		}
	}
}

func (w *Watcher[T]) update(cfg T) {
	if w.OnUpdate != nil {
		w.OnUpdate(cfg)
	}
}

// WatchBusinesses reloads businesses.yaml on change and calls onUpdate with the latest config.
func WatchBusinesses(ctx context.Context, path string, interval time.Duration, onUpdate func(*BusinessesConfig), onError func(error)) error {
	if path == "" {
		path = "configs/businesses.yaml"
	}
	w := &Watcher[*BusinessesConfig]{
		Path:     path,
		Interval: interval,
		Load:     LoadBusinessesConfig,
		OnUpdate: onUpdate,
		OnError:  onError,
	}
	return w.Start(ctx)
}
