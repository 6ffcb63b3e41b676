package storage

import (
	"context"
	"time"

	"github.com/studio-arteamo/sitecms/internal/log"
)

// CleanupManager periodically purges expired state markers.
type CleanupManager struct {
	storage  Storage
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a cleanup manager running every interval.
// A non-positive interval falls back to five minutes.
func NewCleanupManager(storage Storage, interval time.Duration) *CleanupManager {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &CleanupManager{
		storage:  storage,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Run purges once immediately, then on every tick until Stop is called
// or ctx is done.
func (cm *CleanupManager) Run(ctx context.Context) error {
	defer close(cm.doneChan)

	log.LogInfoWithFields("cleanup", "Starting state cleanup", map[string]any{
		"interval": cm.interval.String(),
	})

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.cleanup(ctx)
	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Stop ends Run and waits for it to return.
func (cm *CleanupManager) Stop() {
	close(cm.stopChan)
	<-cm.doneChan
	log.LogInfoWithFields("cleanup", "State cleanup stopped", nil)
}

func (cm *CleanupManager) cleanup(ctx context.Context) {
	count, err := cm.storage.CleanupExpired(ctx)
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to purge expired states", map[string]any{
			"error": err.Error(),
		})
		return
	}
	if count > 0 {
		log.LogInfoWithFields("cleanup", "Purged expired states", map[string]any{
			"count": count,
		})
	}
}
