// Package audit records guild activity entries. Recording is best effort:
// failures are logged and never reach the caller.
package audit

import (
	"context"
	"sync"
	"time"

	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const writeTimeout = 5 * time.Second

// Entry is one auditable event.
type Entry struct {
	GuildID    string
	UserID     string
	Username   string
	Type       model.LogType
	Action     string
	Message    string
	Severity   model.Severity // empty selects the default for Type
	TargetID   string
	TargetName string
	Metadata   map[string]interface{}
}

// Recorder is what handlers depend on.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Publisher receives every entry after it was stored.
type Publisher interface {
	Publish(l *model.Log)
}

type Writer struct {
	logs store.Logs
	log  *zap.Logger
	pub  Publisher
	now  func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan *model.Log
	wg     sync.WaitGroup
}

var _ Recorder = (*Writer)(nil)

type Option func(*Writer)

// WithQueue makes Record asynchronous with a bounded buffer of size n.
// A full buffer drops the entry.
func WithQueue(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.queue = make(chan *model.Log, n)
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(w *Writer) { w.pub = p }
}

func NewWriter(logs store.Logs, log *zap.Logger, opts ...Option) *Writer {
	w := &Writer{logs: logs, log: log.Named("audit"), now: time.Now}
	for _, o := range opts {
		o(w)
	}
	if w.queue != nil {
		w.wg.Add(1)
		go w.drain()
	}
	return w
}

// DefaultSeverity is error for error entries and info for everything else.
func DefaultSeverity(t model.LogType) model.Severity {
	if t == model.LogTypeError {
		return model.SeverityError
	}
	return model.SeverityInfo
}

func (w *Writer) build(e Entry) *model.Log {
	sev := e.Severity
	if sev == "" {
		sev = DefaultSeverity(e.Type)
	}
	l := &model.Log{
		GuildID:    e.GuildID,
		UserID:     e.UserID,
		Username:   e.Username,
		Type:       e.Type,
		Message:    e.Message,
		Severity:   sev,
		Action:     e.Action,
		TargetID:   e.TargetID,
		TargetName: e.TargetName,
		Timestamp:  w.now(),
	}
	if len(e.Metadata) > 0 {
		l.Metadata = datatypes.JSONMap(e.Metadata)
	}
	return l
}

func (w *Writer) Record(ctx context.Context, e Entry) {
	l := w.build(e)

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.log.Warn("audit writer closed, entry dropped", zap.String("action", l.Action), zap.String("guild", l.GuildID))
		return
	}
	if w.queue == nil {
		// the request may be finishing; the write must still happen
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		w.write(wctx, l)
		return
	}
	select {
	case w.queue <- l:
	default:
		w.log.Warn("audit queue full, entry dropped", zap.String("action", l.Action), zap.String("guild", l.GuildID))
	}
}

func (w *Writer) write(ctx context.Context, l *model.Log) {
	if err := w.logs.AppendLog(ctx, l); err != nil {
		w.log.Error("audit write failed",
			zap.Error(err),
			zap.String("action", l.Action),
			zap.String("guild", l.GuildID),
		)
		return
	}
	if w.pub != nil {
		w.pub.Publish(l)
	}
}

func (w *Writer) drain() {
	defer w.wg.Done()
	for l := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		w.write(ctx, l)
		cancel()
	}
}

// Close flushes queued entries and stops the drainer. Safe to call twice.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	if w.queue != nil {
		close(w.queue)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
