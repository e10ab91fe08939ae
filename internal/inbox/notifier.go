package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// notifyDebounce coalesces bursts of filesystem events into one nudge.
const notifyDebounce = 400 * time.Millisecond

// Notifier watches the inbox directory and nudges the run loop when files are
// created or written, so new documents are picked up without waiting for the
// poll interval. The scheduler's Scan remains the source of truth; the
// notifier only signals that a scan is worth running.
type Notifier struct {
	dir     string
	watcher *fsnotify.Watcher
	nudge   chan struct{}
	logger  *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	started bool
}

// NewNotifier creates a notifier for dir. logger may be nil.
func NewNotifier(dir string, logger *zap.Logger) *Notifier {
	return &Notifier{
		dir:    dir,
		nudge:  make(chan struct{}, 1),
		logger: logger,
	}
}

// Nudges returns the channel signalled after inbox activity.
func (n *Notifier) Nudges() <-chan struct{} {
	return n.nudge
}

// Start begins watching. It runs until ctx is cancelled.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		n.mu.Unlock()
		return err
	}
	if err := watcher.Add(n.dir); err != nil {
		_ = watcher.Close()
		n.mu.Unlock()
		return err
	}
	n.watcher = watcher
	n.started = true
	n.mu.Unlock()

	go n.run(ctx)
	return nil
}

func (n *Notifier) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			n.Stop()
			return
		case ev, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				n.scheduleNudge()
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && n.logger != nil {
				n.logger.Debug("inbox watcher error", zap.Error(err))
			}
		}
	}
}

func (n *Notifier) scheduleNudge() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(notifyDebounce, func() {
		select {
		case n.nudge <- struct{}{}:
		default:
			// A nudge is already pending; one scan covers both.
		}
	})
}

// Stop stops watching and releases resources.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started {
		return
	}
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	_ = n.watcher.Close()
	n.started = false
}
