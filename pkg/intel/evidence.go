// Package intel owns the structured evidence extracted from scam
// conversations: financial identifiers, contact numbers, phishing links and
// matched keywords. Extraction and merging are pure functions; persistence
// is the session store's job.
package intel

import "sort"

// Evidence holds the five disjoint identifier sets accumulated over a
// conversation. Field names follow the external reporting contract.
// Each set is deduplicated and sorted; sets only ever grow via Merge.
type Evidence struct {
	BankAccounts       []string `json:"bankAccounts"`
	UPIDs              []string `json:"upids"`
	PhishingLinks      []string `json:"phishingLinks"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// Count returns the number of hard identifiers collected: bank accounts,
// UPI handles, phone numbers and links. Keyword hits are deliberately
// excluded - they indicate scam language, not actionable intelligence.
func (e Evidence) Count() int {
	return len(e.BankAccounts) + len(e.UPIDs) + len(e.PhoneNumbers) + len(e.PhishingLinks)
}

// IsEmpty reports whether no evidence of any kind has been collected.
func (e Evidence) IsEmpty() bool {
	return e.Count() == 0 && len(e.SuspiciousKeywords) == 0
}

// Merge unions two evidence snapshots field by field. It is commutative,
// associative and idempotent: re-merging the same extraction never changes
// the result. Output sets are sorted so equal evidence compares equal.
func Merge(existing, incoming Evidence) Evidence {
	return Evidence{
		BankAccounts:       unionSorted(existing.BankAccounts, incoming.BankAccounts),
		UPIDs:              unionSorted(existing.UPIDs, incoming.UPIDs),
		PhishingLinks:      unionSorted(existing.PhishingLinks, incoming.PhishingLinks),
		PhoneNumbers:       unionSorted(existing.PhoneNumbers, incoming.PhoneNumbers),
		SuspiciousKeywords: unionSorted(existing.SuspiciousKeywords, incoming.SuspiciousKeywords),
	}
}

// unionSorted returns the sorted set union of a and b.
// Always returns a non-nil slice so JSON encodes [] instead of null.
func unionSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
