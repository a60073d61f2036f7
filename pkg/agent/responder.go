// Package agent generates the decoy persona's replies. The persona is a
// believable victim whose job is to keep the scammer talking until they
// reveal actionable intelligence. Reply generation goes through an
// OpenAI-compatible chat API; when the provider is unreachable the caller
// falls back to a canned rotation so the conversation never stalls.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"github.com/TryMightyAI/decoy/pkg/httputil"
	"github.com/TryMightyAI/decoy/pkg/intel"
	"github.com/TryMightyAI/decoy/pkg/session"
)

// Provider defines the backend service type
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderOllama     Provider = "ollama"
	ProviderGroq       Provider = "groq"
	ProviderCustom     Provider = "custom"
)

// DefaultTemperature keeps replies varied enough to read as human.
// Deterministic output would make the decoy easy to fingerprint.
const DefaultTemperature = 0.8

const maxReplyTokens = 150

// decoySystemPrompt frames every generation. The persona never breaks
// character: it plays a cooperative but hesitant target and steers the
// scammer toward revealing payment handles, accounts and links.
const decoySystemPrompt = `You are a helpful Indian citizen being targeted by a scammer.

CRITICAL RULES:
1. DO NOT reveal that you know it's a scam
2. Act naturally curious and slightly hesitant but cooperative
3. Your goal is to extract information while keeping them engaged:
   - Bank account numbers
   - UPI IDs
   - Phone numbers
   - Phishing links
   - Any other identifying information

4. Ask clarifying questions to get more details
5. Show mild concern but willingness to help/comply
6. Use natural Indian English expressions (e.g., "kindly", "please do the needful")
7. Occasionally express slight confusion to prompt them to explain more
8. Never be too quick to comply - show realistic hesitation
9. Ask for "verification" or "proof" to extract more data

Remember: You're pretending to be a regular person who doesn't realize this is a scam. Be believable.`

// Config holds the configuration for the responder
type Config struct {
	Provider    Provider
	APIKey      string // Optional for Ollama
	Model       string
	BaseURL     string  // Optional override, required for ProviderCustom
	Temperature float64 // Defaults to DefaultTemperature
}

// Responder generates in-character replies via an external LLM.
type Responder struct {
	client      *http.Client
	provider    Provider
	baseURL     string
	apiKey      string
	model       string
	temperature float64
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// NewResponder creates a responder instance
func NewResponder(cfg Config) *Responder {
	if cfg.Model == "" {
		if cfg.Provider == ProviderOllama {
			cfg.Model = "qwen2.5:7b" // Default local
		} else {
			cfg.Model = "meta-llama/llama-3.3-70b-instruct" // Default cloud
		}
	}

	var baseURL string
	switch cfg.Provider {
	case ProviderOllama:
		baseURL = "http://localhost:11434/v1" // OpenAI compatible endpoint of Ollama
	case ProviderGroq:
		baseURL = "https://api.groq.com/openai/v1"
	case ProviderCustom:
		baseURL = cfg.BaseURL
	case ProviderOpenRouter:
		fallthrough
	default:
		baseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}

	return &Responder{
		client:      httputil.SlowClient(),
		provider:    cfg.Provider,
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: temperature,
	}
}

// Reply generates the persona's next message. History maps onto the chat
// roles from the persona's side of the table: the decoy's own past replies
// become "assistant" turns, the scammer's become "user" turns.
func (r *Responder) Reply(ctx context.Context, latest string, history []session.Turn, lang language.Tag) (string, error) {
	if r.provider == ProviderOpenRouter && r.apiKey == "" {
		return "", fmt.Errorf("API key not configured for OpenRouter")
	}

	msgs := make([]message, 0, len(history)+2)
	msgs = append(msgs, message{Role: "system", Content: decoySystemPrompt})
	for _, turn := range history {
		role := "user"
		if turn.Sender == session.SenderAgent {
			role = "assistant"
		}
		msgs = append(msgs, message{Role: role, Content: turn.Text})
	}
	msgs = append(msgs, message{Role: "user", Content: latest})

	reply, err := r.callLLM(ctx, chatRequest{
		Model:       r.model,
		Messages:    msgs,
		Temperature: r.temperature,
		MaxTokens:   maxReplyTokens,
	})
	if err != nil {
		return "", err
	}

	return Localize(strings.TrimSpace(reply), lang), nil
}

func (r *Responder) callLLM(ctx context.Context, reqBody chatRequest) (string, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(r.baseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}

	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer httputil.DrainAndClose(resp.Body)

	body, err := httputil.ReadResponseBody(resp.Body, 2*1024*1024)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal error: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}

// Canned replies used when generation fails. Each asks a question that
// invites the scammer to volunteer details, so even the degraded path keeps
// extracting.
var fallbackReplies = []string{
	"I'm not sure I understand. Can you explain more?",
	"This seems urgent. What do I need to do exactly?",
	"Can you send me the details? I want to make sure this is legitimate.",
	"How do I verify this is real?",
	"What information do you need from me?",
	"I'm a bit confused. Can you clarify?",
	"Should I call my bank about this?",
	"Is there a customer service number I can verify this with?",
}

// FallbackReply returns the canned reply for the given turn. Cycling on the
// message count avoids repeating the same line two turns in a row.
func FallbackReply(messageCount int) string {
	if messageCount < 0 {
		messageCount = 0
	}
	return fallbackReplies[messageCount%len(fallbackReplies)]
}

// styleTransforms localize a generated English reply for the conversation's
// declared language. Only Hindi has a transform today; unknown languages
// pass through unchanged.
var styleTransforms = map[language.Tag]func(string) string{
	language.Hindi: hindiTouches,
}

// Localize applies the declared language's style transform, if any.
func Localize(text string, lang language.Tag) string {
	if transform, ok := styleTransforms[lang]; ok {
		return transform(text)
	}
	return text
}

var hindiReplacements = [][2]string{
	{"Please", "Kripya"},
	{"Thank you", "Dhanyavaad"},
	{"Okay", "Theek hai"},
	{"Yes", "Haan"},
}

// hindiTouches sprinkles one Hindi expression into a short English reply.
// One substitution per message and only on short replies, so the persona
// reads as a Hindi speaker writing English rather than machine translation.
func hindiTouches(text string) string {
	if len(strings.Fields(text)) >= 20 {
		return text
	}
	for _, r := range hindiReplacements {
		if strings.Contains(text, r[0]) {
			return strings.Replace(text, r[0], r[1], 1)
		}
	}
	return text
}

// EngagementNotes summarizes the engagement for the evaluation callback.
func EngagementNotes(messageCount int, ev intel.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Engaged scammer for %d messages. ", messageCount)

	if items := ev.Count(); items > 0 {
		fmt.Fprintf(&b, "Successfully extracted %d intelligence items. ", items)
	} else {
		b.WriteString("Scammer did not reveal sensitive information yet. ")
	}

	if len(ev.SuspiciousKeywords) > 0 {
		top := ev.SuspiciousKeywords
		if len(top) > 3 {
			top = top[:3]
		}
		fmt.Fprintf(&b, "Key scam indicators: %s. ", strings.Join(top, ", "))
	}
	return b.String()
}
