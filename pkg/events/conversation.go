package events

import "time"

const (
	TypeConversationAnswered = "conversation.answered"
	TypeHistoryPruned        = "history.pruned"
)

// ConversationAnswered is the audit record of one finished run. It never carries
// the question or the answer text.
func ConversationAnswered(sessionID, username, email, role, state string, needsComputation bool, sources []string, at time.Time) BaseEvent {
	if sources == nil {
		sources = []string{}
	}
	return BaseEvent{
		Type: TypeConversationAnswered,
		Data: map[string]interface{}{
			"session_id":        sessionID,
			"username":          username,
			"email":             email,
			"role":              role,
			"state":             state,
			"needs_computation": needsComputation,
			"sources":           sources,
			"answered_at":       at.UTC().Format(time.RFC3339Nano),
		},
		OccurredAt: at,
	}
}

func HistoryPruned(deleted int64, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeHistoryPruned,
		Data: map[string]interface{}{
			"deleted":   deleted,
			"pruned_at": at.UTC().Format(time.RFC3339),
		},
		OccurredAt: at,
	}
}
