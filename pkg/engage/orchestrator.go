// Package engage orchestrates one conversation turn end to end: record the
// message, classify it, keep the scammer talking, harvest intelligence and
// fire the evaluation callback when the engagement has earned it.
package engage

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/text/language"

	"github.com/TryMightyAI/decoy/pkg/agent"
	"github.com/TryMightyAI/decoy/pkg/detect"
	"github.com/TryMightyAI/decoy/pkg/intel"
	"github.com/TryMightyAI/decoy/pkg/notify"
	"github.com/TryMightyAI/decoy/pkg/patterns"
	"github.com/TryMightyAI/decoy/pkg/session"
)

// EngagementSecondsPerExchange approximates wall-clock engagement time from
// message count. Message timestamps come from untrusted callers, so elapsed
// time is derived rather than trusted.
const EngagementSecondsPerExchange = 30

// Message is one turn as it appears on the wire. Timestamp arrives as a
// string and is parsed best-effort; an unparseable value falls back to
// receipt time rather than rejecting the turn.
type Message struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Metadata carries conversation-level attributes fixed at first contact.
type Metadata struct {
	Channel  string `json:"channel"`
	Language string `json:"language"`
	Locale   string `json:"locale"`
}

// TurnRequest is the detect-scam request body. ConversationHistory is
// accepted for contract compatibility but the store's own history is
// authoritative; replaying a caller-supplied history would let a client
// inflate engagement metrics.
type TurnRequest struct {
	SessionID           string    `json:"sessionId"`
	Message             Message   `json:"message"`
	ConversationHistory []Message `json:"conversationHistory"`
	Metadata            Metadata  `json:"metadata"`
}

// EngagementMetrics reports how long the decoy has held the scammer.
type EngagementMetrics struct {
	EngagementDurationSeconds int `json:"engagementDurationSeconds"`
	TotalMessagesExchanged    int `json:"totalMessagesExchanged"`
}

// TurnResult is the detect-scam response body.
type TurnResult struct {
	Status                string            `json:"status"`
	ScamDetected          bool              `json:"scamDetected"`
	EngagementMetrics     EngagementMetrics `json:"engagementMetrics"`
	ExtractedIntelligence intel.Evidence    `json:"extractedIntelligence"`
	AgentNotes            string            `json:"agentNotes"`
	AgentResponse         string            `json:"agentResponse,omitempty"`
}

// Engine runs the turn pipeline. The responder may be nil when no LLM is
// configured; the canned fallback rotation keeps engagements alive.
type Engine struct {
	store      *session.Store
	responder  *agent.Responder
	dispatcher *notify.Dispatcher
}

// New wires an Engine.
func New(store *session.Store, responder *agent.Responder, dispatcher *notify.Dispatcher) *Engine {
	return &Engine{store: store, responder: responder, dispatcher: dispatcher}
}

// HandleTurn processes one incoming message. Step order is fixed: the turn
// is recorded first so even a failed classification leaves an accurate
// history, and the callback decision comes last so it sees the fully merged
// evidence for this turn.
func (e *Engine) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	lang := patterns.ResolveLanguage(req.Metadata.Language)

	turn := session.Turn{
		Sender:    req.Message.Sender,
		Text:      req.Message.Text,
		Timestamp: parseTimestamp(req.Message.Timestamp),
	}

	// Step 1: record the turn, creating the session on first contact.
	conv, err := e.store.ApplyTurn(ctx, req.SessionID, turn, req.Metadata.Language, req.Metadata.Channel)
	if err != nil {
		return nil, fmt.Errorf("record turn: %w", err)
	}

	// Step 2: classify. Only the scammer's messages are scored; the decoy's
	// own replies echoed back must never flag a session.
	scamDetected := false
	agentResponse := ""
	if turn.Sender == session.SenderScammer {
		verdict := detect.Classify(turn.Text, lang)
		scamDetected = verdict.IsScam

		if scamDetected {
			if !conv.ScamFlagged {
				if err := e.store.SetScamFlagged(ctx, req.SessionID); err != nil {
					return nil, fmt.Errorf("flag scam: %w", err)
				}
				conv.ScamFlagged = true
			}
			agentResponse = e.generateReply(ctx, turn.Text, conv, lang)
		}
	}

	// Step 3: re-extract over the whole history and merge. Extraction is
	// idempotent, so rescanning old turns cannot double-count.
	extracted := intel.ExtractFromHistory(conv.Texts(), lang)
	merged, err := e.store.ApplyEvidence(ctx, req.SessionID, extracted)
	if err != nil {
		return nil, fmt.Errorf("merge evidence: %w", err)
	}

	// Step 4: derived reporting fields.
	totalMessages := conv.MessageCount()
	notes := agent.EngagementNotes(totalMessages, merged)
	metrics := EngagementMetrics{
		EngagementDurationSeconds: totalMessages * EngagementSecondsPerExchange,
		TotalMessagesExchanged:    totalMessages,
	}

	// Step 5: callback gate. MarkNotified is a compare-and-set, so of all
	// concurrent turns crossing the threshold exactly one enqueues.
	conv.Evidence = merged
	if e.dispatcher != nil && notify.ShouldNotify(conv) {
		won, err := e.store.MarkNotified(ctx, req.SessionID)
		if err != nil {
			log.Printf("[ENGAGE] session %s: mark notified: %v", req.SessionID, err)
		} else if won {
			e.dispatcher.Enqueue(notify.Payload{
				SessionID:              req.SessionID,
				ScamDetected:           true,
				TotalMessagesExchanged: totalMessages,
				ExtractedIntelligence:  merged,
				AgentNotes:             notes,
			})
		}
	}

	return &TurnResult{
		Status:                "success",
		ScamDetected:          scamDetected,
		EngagementMetrics:     metrics,
		ExtractedIntelligence: merged,
		AgentNotes:            notes,
		AgentResponse:         agentResponse,
	}, nil
}

// Snapshot returns the stored conversation, or nil if unknown.
func (e *Engine) Snapshot(ctx context.Context, sessionID string) (*session.Conversation, error) {
	return e.store.Get(ctx, sessionID)
}

// Reset deletes the working copy and closes the durable record. Resetting an
// unknown session succeeds.
func (e *Engine) Reset(ctx context.Context, sessionID string) error {
	return e.store.Delete(ctx, sessionID)
}

// generateReply asks the responder for an in-character reply, falling back
// to the canned rotation so the scammer always gets an answer.
func (e *Engine) generateReply(ctx context.Context, latest string, conv *session.Conversation, lang language.Tag) string {
	count := conv.MessageCount()
	if e.responder == nil {
		return agent.Localize(agent.FallbackReply(count), lang)
	}
	reply, err := e.responder.Reply(ctx, latest, historyBefore(conv), lang)
	if err != nil {
		log.Printf("[ENGAGE] session %s: reply generation failed, using fallback: %v", conv.ID, err)
		return agent.Localize(agent.FallbackReply(count), lang)
	}
	return reply
}

// historyBefore returns every turn except the latest, which is passed to the
// responder separately as the message being answered.
func historyBefore(conv *session.Conversation) []session.Turn {
	if len(conv.History) == 0 {
		return nil
	}
	return conv.History[:len(conv.History)-1]
}

// parseTimestamp accepts RFC 3339 with or without sub-second precision.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
