package progress

import (
	"context"
	"strings"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
)

// Reporter writes role-tagged messages for a session. Failures are logged, never returned.
type Reporter struct {
	store  Store
	logger logger.ILogger
	now    func() time.Time
}

func NewReporter(store Store, log logger.ILogger) *Reporter {
	return &Reporter{store: store, logger: log, now: time.Now}
}

func (r *Reporter) Progress(ctx context.Context, sessionID, role, content string) {
	r.add(ctx, sessionID, TypeProgress, tag(role, content), map[string]interface{}{"role": role})
}

func (r *Reporter) Final(ctx context.Context, sessionID, content string, metadata map[string]interface{}) {
	r.add(ctx, sessionID, TypeFinal, content, metadata)
}

func (r *Reporter) Error(ctx context.Context, sessionID, content string) {
	r.add(ctx, sessionID, TypeError, content, nil)
}

func (r *Reporter) add(ctx context.Context, sessionID string, typ MessageType, content string, metadata map[string]interface{}) {
	if r == nil || r.store == nil || sessionID == "" {
		return
	}
	// progress outlives the run it describes, so writes ignore run cancellation
	ctx = context.WithoutCancel(ctx)

	msg := Message{Type: typ, Content: content, Timestamp: r.now(), Metadata: metadata}
	if err := r.store.Add(ctx, sessionID, msg); err != nil {
		r.logger.Warn("RAG.Progress", "Failed to store progress message", map[string]interface{}{
			"session_id": sessionID,
			"type":       string(typ),
			"error":      err.Error(),
		})
	}
}

func tag(role, content string) string {
	if role == "" {
		return content
	}
	return "[" + strings.ToUpper(role) + "] " + content
}
