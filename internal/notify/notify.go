// Package notify provides cross-platform desktop notifications for batch
// lifecycle events. It uses github.com/gen2brain/beeep.
package notify

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/proptour/proptour-cli/internal/config"
	"github.com/proptour/proptour-cli/internal/logging"
)

// Notifier handles desktop notifications. It implements the watcher's
// notice interface; the watcher guarantees each terminal notice fires at
// most once per batch, the notifier only decides whether to show it.
type Notifier struct {
	logger        *logging.Logger
	mu            sync.RWMutex
	enabled       bool
	showCompleted bool
	showFailed    bool
}

// NewNotifier creates a notifier from the notification configuration.
func NewNotifier(cfg config.NotificationConfig, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Notifier{
		logger:        logger,
		enabled:       cfg.Enabled,
		showCompleted: cfg.ShowCompleted,
		showFailed:    cfg.ShowFailed,
	}
}

// SetEnabled enables or disables all notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

func (n *Notifier) completedOn() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.showCompleted
}

func (n *Notifier) failedOn() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.showFailed
}

// BatchCompleted announces a finished batch.
func (n *Notifier) BatchCompleted(batchID string) {
	if !n.completedOn() {
		return
	}

	title := "Property video created!"
	message := "Your property tour video is ready to download."

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("batch_id", batchID).Msg("Failed to send completion notification")
	}
}

// ProcessingFailed announces a batch that ended in a failure status.
func (n *Notifier) ProcessingFailed(batchID, status string) {
	if !n.failedOn() {
		return
	}

	title := "Processing failed"
	message := "There was an error processing your video."

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("batch_id", batchID).Str("status", status).Msg("Failed to send failure notification")
	}
}

// PartiallyCompleted announces a batch with mixed per-item outcomes.
func (n *Notifier) PartiallyCompleted(batchID string) {
	if !n.failedOn() {
		return
	}

	title := "Processing partially completed"
	message := "Some videos were processed successfully, others failed."

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("batch_id", batchID).Msg("Failed to send partial completion notification")
	}
}

// StatusCheckFailed announces that polling could not reach the backend.
func (n *Notifier) StatusCheckFailed(batchID string, cause error) {
	if !n.failedOn() {
		return
	}

	title := "Status check failed"
	message := "Failed to check processing status."

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("batch_id", batchID).Msg("Failed to send status check notification")
	}
}

// DownloadComplete announces a saved archive.
func (n *Notifier) DownloadComplete(path string) {
	if !n.completedOn() {
		return
	}

	title := "Download complete"
	message := fmt.Sprintf("Videos saved to %s", filepath.Base(path))

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("file", path).Msg("Failed to send download notification")
	}
}

// DownloadFailed announces a failed archive download.
func (n *Notifier) DownloadFailed(batchID string) {
	if !n.failedOn() {
		return
	}

	title := "Download failed"
	message := "Failed to download your videos."

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("batch_id", batchID).Msg("Failed to send download failure notification")
	}
}

// send is the internal method that actually sends the notification.
func (n *Notifier) send(title, message string) error {
	// beeep.Notify is cross-platform:
	// - Windows: toast notifications
	// - macOS: NSUserNotificationCenter
	// - Linux: D-Bus notifications
	return beeep.Notify(title, message, "")
}
