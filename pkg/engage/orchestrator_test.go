package engage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/TryMightyAI/decoy/pkg/notify"
	"github.com/TryMightyAI/decoy/pkg/session"
)

// testHarness wires an engine with a process-local store, no LLM responder
// and a dispatcher pointed at a capturing callback server.
type testHarness struct {
	engine    *Engine
	close     func()
	callbacks func() []notify.Payload
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	var mu sync.Mutex
	var received []notify.Payload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p notify.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("bad callback payload: %v", err)
		}
		mu.Lock()
		received = append(received, p)
		mu.Unlock()
		w.WriteHeader(200)
	}))

	store := session.New()
	dispatcher := notify.NewDispatcher(srv.URL, 16)
	engine := New(store, nil, dispatcher)

	return &testHarness{
		engine: engine,
		close: func() {
			dispatcher.Close()
			store.Close()
			srv.Close()
		},
		callbacks: func() []notify.Payload {
			mu.Lock()
			defer mu.Unlock()
			out := make([]notify.Payload, len(received))
			copy(out, received)
			return out
		},
	}
}

func turnRequest(sessionID, sender, text string) TurnRequest {
	return TurnRequest{
		SessionID: sessionID,
		Message:   Message{Sender: sender, Text: text, Timestamp: "2026-08-29T10:00:00Z"},
		Metadata:  Metadata{Channel: "SMS", Language: "English", Locale: "IN"},
	}
}

func TestHandleTurnScamFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	scamText := "Congratulations! You won a lottery prize. Click here https://bit.ly/claim to verify your account"
	result, err := h.engine.HandleTurn(ctx, turnRequest("sess-1", session.SenderScammer, scamText))
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if result.Status != "success" {
		t.Errorf("Status = %q", result.Status)
	}
	if !result.ScamDetected {
		t.Error("scam not detected")
	}
	if result.AgentResponse == "" {
		t.Error("no decoy reply on a detected scam")
	}
	if result.EngagementMetrics.TotalMessagesExchanged != 1 {
		t.Errorf("TotalMessagesExchanged = %d", result.EngagementMetrics.TotalMessagesExchanged)
	}
	if result.EngagementMetrics.EngagementDurationSeconds != EngagementSecondsPerExchange {
		t.Errorf("EngagementDurationSeconds = %d", result.EngagementMetrics.EngagementDurationSeconds)
	}
	if len(result.ExtractedIntelligence.PhishingLinks) == 0 {
		t.Errorf("link not extracted: %+v", result.ExtractedIntelligence)
	}
	if result.AgentNotes == "" {
		t.Error("empty agent notes")
	}

	conv, err := h.engine.Snapshot(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if !conv.ScamFlagged {
		t.Error("session not flagged")
	}

	h.close()

	// The link satisfies the evidence gate, so exactly one callback fires on
	// the first turn.
	got := h.callbacks()
	if len(got) != 1 {
		t.Fatalf("callbacks = %d, want 1", len(got))
	}
	if got[0].SessionID != "sess-1" || !got[0].ScamDetected {
		t.Errorf("callback payload = %+v", got[0])
	}
}

func TestHandleTurnCallbackAtMostOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Three scam turns, all individually past the gate once flagged.
	for i := 0; i < 3; i++ {
		req := turnRequest("sess-2", session.SenderScammer,
			"Urgent! Your SBI account is suspended, share your OTP to verify KYC at https://bit.ly/fix")
		if _, err := h.engine.HandleTurn(ctx, req); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	h.close()
	if got := h.callbacks(); len(got) != 1 {
		t.Errorf("callbacks = %d, want exactly 1 across repeated scam turns", len(got))
	}
}

func TestHandleTurnBenign(t *testing.T) {
	h := newHarness(t)
	defer h.close()
	ctx := context.Background()

	result, err := h.engine.HandleTurn(ctx, turnRequest("sess-3", session.SenderScammer, "Hi, is this the bakery?"))
	if err != nil {
		t.Fatal(err)
	}
	if result.ScamDetected {
		t.Error("benign message flagged as scam")
	}
	if result.AgentResponse != "" {
		t.Errorf("decoy replied to a benign message: %q", result.AgentResponse)
	}
	if len(h.callbacks()) != 0 {
		t.Error("callback fired for benign conversation")
	}
}

func TestHandleTurnIgnoresDecoyEcho(t *testing.T) {
	h := newHarness(t)
	defer h.close()
	ctx := context.Background()

	// The decoy's own reply echoed back must never be classified, no matter
	// how scammy it reads.
	req := turnRequest("sess-4", session.SenderAgent,
		"Should I share my OTP? My SBI account is suspended, I am worried about KYC")
	result, err := h.engine.HandleTurn(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if result.ScamDetected {
		t.Error("decoy turn was classified as scam")
	}

	conv, _ := h.engine.Snapshot(ctx, "sess-4")
	if conv.ScamFlagged {
		t.Error("decoy turn flagged the session")
	}
}

func TestHandleTurnLanguageFirstWriteWins(t *testing.T) {
	h := newHarness(t)
	defer h.close()
	ctx := context.Background()

	req := turnRequest("sess-5", session.SenderScammer, "hello")
	req.Metadata.Language = "Hindi"
	if _, err := h.engine.HandleTurn(ctx, req); err != nil {
		t.Fatal(err)
	}

	req = turnRequest("sess-5", session.SenderScammer, "hello again")
	req.Metadata.Language = "Tamil"
	if _, err := h.engine.HandleTurn(ctx, req); err != nil {
		t.Fatal(err)
	}

	conv, _ := h.engine.Snapshot(ctx, "sess-5")
	if conv.Language != "Hindi" {
		t.Errorf("Language = %q, want first-write Hindi", conv.Language)
	}
}

func TestReset(t *testing.T) {
	h := newHarness(t)
	defer h.close()
	ctx := context.Background()

	if _, err := h.engine.HandleTurn(ctx, turnRequest("sess-6", session.SenderScammer, "hello")); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.Reset(ctx, "sess-6"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if conv, _ := h.engine.Snapshot(ctx, "sess-6"); conv != nil {
		t.Errorf("session survived reset: %+v", conv)
	}

	// Unknown id is not an error.
	if err := h.engine.Reset(ctx, "never-existed"); err != nil {
		t.Fatalf("Reset unknown: %v", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"rfc3339", "2026-08-29T10:00:00Z", true},
		{"rfc3339 nano", "2026-08-29T10:00:00.123456789+05:30", true},
		{"no zone", "2026-08-29T10:00:00", true},
		{"empty falls back to now", "", false},
		{"garbage falls back to now", "yesterday-ish", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTimestamp(tt.input)
			if got.IsZero() {
				t.Error("parseTimestamp returned zero time")
			}
			if tt.valid && got.Year() != 2026 {
				t.Errorf("parsed %q to %v", tt.input, got)
			}
		})
	}
}
