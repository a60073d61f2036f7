package intel

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"github.com/TryMightyAI/decoy/pkg/patterns"
)

// Extraction patterns, compiled once. These pull structured identifiers out
// of raw message text; keyword matching comes from the pattern registry's
// per-language lists.
var (
	// 9-18 consecutive digits: bank-account-shaped numbers.
	reBankAccount = regexp.MustCompile(`\b\d{9,18}\b`)

	// Handle-like tokens ending in a known payment-provider suffix.
	reUPIHandle = regexp.MustCompile(`(?i)\b[\w.-]+@(okaxis|okhdfcbank|okicici|oksbi|ybl|axl|paytm|phonepe|gpay|airtel|amazon|freecharge|jiomoney|mobikwik|ola|pockets|whatsapp)\b`)

	// Indian mobile numbers: optional country/trunk prefix, 10 digits starting 6-9.
	rePhoneNumber = regexp.MustCompile(`(?:\+91|91|0)?[6-9]\d{9}\b`)

	// Any http(s) URL up to the next whitespace.
	reURL = regexp.MustCompile(`https?://[^\s]+`)
)

// Extract pulls all structured evidence out of a single text. The result is
// deduplicated and sorted within this call but not merged with prior state -
// merging is Merge's job. English keywords are always checked
// (case-insensitive substring); the declared language's keywords are matched
// literally, which is substring matching for non-Latin scripts.
func Extract(text string, lang language.Tag) Evidence {
	ev := Evidence{
		BankAccounts:  unionSorted(reBankAccount.FindAllString(text, -1), nil),
		UPIDs:         unionSorted(reUPIHandle.FindAllString(text, -1), nil),
		PhishingLinks: unionSorted(reURL.FindAllString(text, -1), nil),
		PhoneNumbers:  unionSorted(rePhoneNumber.FindAllString(text, -1), nil),
	}

	reg := patterns.Get()
	var hits []string

	lower := strings.ToLower(text)
	for _, kw := range reg.SuspiciousKeywords(language.English) {
		if strings.Contains(lower, strings.ToLower(kw)) {
			hits = append(hits, kw)
		}
	}
	if lang != language.English {
		for _, kw := range reg.SuspiciousKeywords(lang) {
			if strings.Contains(text, kw) {
				hits = append(hits, kw)
			}
		}
	}
	ev.SuspiciousKeywords = unionSorted(hits, nil)

	return ev
}

// ExtractFromHistory runs extraction over an entire conversation by joining
// all turn texts, in order, before delegating to Extract. Re-running over the
// full history keeps extraction idempotent regardless of which turns were
// seen before.
func ExtractFromHistory(texts []string, lang language.Tag) Evidence {
	return Extract(strings.Join(texts, " "), lang)
}
