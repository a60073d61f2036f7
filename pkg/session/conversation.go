// Package session owns the authoritative mutable state of every scam
// conversation. All state mutation goes through the Store, which serializes
// concurrent updates per conversation id and mirrors accepted mutations into
// an optional durable tier.
package session

import (
	"time"

	"github.com/TryMightyAI/decoy/pkg/intel"
)

// Senders as they appear on the wire. The decoy persona's replies are
// recorded as "user" - from the scammer's point of view they are talking to
// a real victim.
const (
	SenderScammer = "scammer"
	SenderAgent   = "user"
)

// Status describes a conversation's lifecycle state in the durable tier.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed" // set on explicit reset
	// StatusAbandoned is reserved for idle-timeout expiry. The fast tier
	// already expires idle conversations; a future sweep will mark their
	// durable records abandoned instead of leaving them active forever.
	StatusAbandoned Status = "abandoned"
)

// Turn is one message within a conversation. Immutable once recorded.
type Turn struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the aggregate root for one session id.
//
// Invariants maintained by the Store:
//   - History is append-only; its length equals the number of turns ever
//     accepted for this id.
//   - Evidence sets only grow (Merge semantics).
//   - ScamFlagged and NotificationSent transition false->true at most once
//     and never back.
//   - Language and Channel are first-write-wins, fixed at creation.
type Conversation struct {
	ID               string         `json:"id"`
	History          []Turn         `json:"history"`
	Evidence         intel.Evidence `json:"evidence"`
	ScamFlagged      bool           `json:"scamFlagged"`
	NotificationSent bool           `json:"notificationSent"`
	Language         string         `json:"language"`
	Channel          string         `json:"channel"`
	Status           Status         `json:"status"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// MessageCount returns the number of turns accepted so far.
func (c *Conversation) MessageCount() int {
	return len(c.History)
}

// Texts returns every turn's text in insertion order, for whole-history
// evidence extraction.
func (c *Conversation) Texts() []string {
	out := make([]string, len(c.History))
	for i, t := range c.History {
		out[i] = t.Text
	}
	return out
}

// clone deep-copies the conversation so callers can read the result after
// the store's per-key lock is released without racing later mutations.
func (c *Conversation) clone() *Conversation {
	cp := *c
	cp.History = append([]Turn(nil), c.History...)
	cp.Evidence = intel.Merge(intel.Evidence{}, c.Evidence)
	return &cp
}
