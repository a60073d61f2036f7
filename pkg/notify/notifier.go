// Package notify delivers the at-most-once evaluation callback. The gate
// decides eligibility, the session store's MarkNotified picks the single
// winner, and the Dispatcher delivers the payload off the request path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/TryMightyAI/decoy/pkg/httputil"
	"github.com/TryMightyAI/decoy/pkg/intel"
	"github.com/TryMightyAI/decoy/pkg/session"
)

// DefaultCallbackURL is where final engagement results are reported unless
// overridden by configuration.
const DefaultCallbackURL = "https://hackathon.guvi.in/api/updateHoneyPotFinalResult"

const deliveryTimeout = 10 * time.Second

// Payload is the final-result report. Field names are part of the external
// contract; do not rename.
type Payload struct {
	SessionID              string         `json:"sessionId"`
	ScamDetected           bool           `json:"scamDetected"`
	TotalMessagesExchanged int            `json:"totalMessagesExchanged"`
	ExtractedIntelligence  intel.Evidence `json:"extractedIntelligence"`
	AgentNotes             string         `json:"agentNotes"`
}

// ShouldNotify reports whether the conversation has earned its callback:
// flagged as a scam, not yet reported, and either the engagement has
// progressed past the opening exchange or hard intelligence was extracted.
// Keyword-only evidence never satisfies the gate on its own.
func ShouldNotify(conv *session.Conversation) bool {
	if conv == nil || !conv.ScamFlagged || conv.NotificationSent {
		return false
	}
	return conv.MessageCount() >= 3 || conv.Evidence.Count() > 0
}

// Dispatcher posts payloads to the evaluation endpoint from a single worker
// goroutine. Deliveries run on a detached context so an aborted client
// request cannot cancel a callback that already won the notification race.
type Dispatcher struct {
	endpoint string
	client   *http.Client
	queue    chan Payload
	wg       sync.WaitGroup

	closeOnce sync.Once
}

// NewDispatcher starts the delivery worker. An empty endpoint falls back to
// DefaultCallbackURL.
func NewDispatcher(endpoint string, queueSize int) *Dispatcher {
	if endpoint == "" {
		endpoint = DefaultCallbackURL
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		endpoint: endpoint,
		client:   httputil.FastClient(),
		queue:    make(chan Payload, queueSize),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Enqueue hands a payload to the worker without blocking. Returns false when
// the queue is full; the caller already marked the session notified, so a
// dropped payload is logged loudly rather than retried.
func (d *Dispatcher) Enqueue(p Payload) bool {
	select {
	case d.queue <- p:
		return true
	default:
		log.Printf("[NOTIFY] queue full, dropping callback for session %s", p.SessionID)
		return false
	}
}

// Close stops accepting payloads and waits for queued deliveries to finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.queue) })
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for p := range d.queue {
		d.deliver(p)
	}
}

// deliver posts one payload and logs the outcome. At-most-once means no
// retry on any failure: the winner already burned the session's one
// notification slot.
func (d *Dispatcher) deliver(p Payload) {
	body, err := json.Marshal(p)
	if err != nil {
		log.Printf("[NOTIFY] session %s: encode payload: %v", p.SessionID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", d.endpoint, bytes.NewReader(body))
	if err != nil {
		log.Printf("[NOTIFY] session %s: build request: %v", p.SessionID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			log.Printf("[NOTIFY] session %s: callback timed out", p.SessionID)
			return
		}
		log.Printf("[NOTIFY] session %s: callback transport error: %v", p.SessionID, err)
		return
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := httputil.ReadErrorBody(resp.Body)
		log.Printf("[NOTIFY] session %s: callback rejected with %d: %s", p.SessionID, resp.StatusCode, string(errBody))
		return
	}
	log.Printf("[NOTIFY] session %s: callback delivered (%d messages, %d intel items)",
		p.SessionID, p.TotalMessagesExchanged, p.ExtractedIntelligence.Count())
}
