package audit

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueFull is returned by Writer.Create when the buffer is full. The
// entry is dropped.
var ErrQueueFull = errors.New("audit: write queue full")

const defaultWriterBuffer = 256

// Logger is the subset of logging.Logger the writer uses.
type Logger interface {
	Error(msg string, args ...any)
}

// Writer queues command log entries and writes them serially on one
// goroutine, so a publish never waits on SQLite.
type Writer struct {
	repo   Repository
	logger Logger
	ch     chan *CommandLog
	wg     sync.WaitGroup
}

// NewWriter creates a Writer in front of repo. Call Run to start draining.
func NewWriter(repo Repository, logger Logger, buffer int) *Writer {
	if buffer < 1 {
		buffer = defaultWriterBuffer
	}
	return &Writer{
		repo:   repo,
		logger: logger,
		ch:     make(chan *CommandLog, buffer),
	}
}

// Create enqueues entry without blocking.
func (w *Writer) Create(_ context.Context, entry *CommandLog) error {
	select {
	case w.ch <- entry:
		return nil
	default:
		return ErrQueueFull
	}
}

// List reads through to the repository.
func (w *Writer) List(ctx context.Context, filter Filter) (*ListResult, error) {
	return w.repo.List(ctx, filter)
}

// Run writes queued entries until ctx is cancelled, then drains what is
// left and returns.
func (w *Writer) Run(ctx context.Context) {
	w.wg.Add(1)
	defer w.wg.Done()
	for {
		select {
		case entry := <-w.ch:
			w.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-w.ch:
					w.write(entry)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (w *Writer) Wait() {
	w.wg.Wait()
}

func (w *Writer) write(entry *CommandLog) {
	if err := w.repo.Create(context.Background(), entry); err != nil && w.logger != nil {
		w.logger.Error("command log write failed",
			"kind", entry.Kind,
			"topic", entry.Topic,
			"error", err,
		)
	}
}
