package config

import (
	"context"
	"os"
	"time"
)

// WatchAuth reloads the config file on change and calls onUpdate with the auth section.
// The caller already holds the initial config, so no update is sent before the first change.
func WatchAuth(ctx context.Context, path string, interval time.Duration, onUpdate func(AuthConfig)) error {
	if path == "" {
		path = "configs/config.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					continue
				}
				lastMod = info.ModTime()
				if onUpdate != nil {
					onUpdate(cfg.Auth)
				}
			}
		}
	}()

	return nil
}
