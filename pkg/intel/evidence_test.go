package intel

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestMergeProperties(t *testing.T) {
	a := Evidence{
		BankAccounts:       []string{"123456789012"},
		UPIDs:              []string{"fraud@ybl"},
		SuspiciousKeywords: []string{"OTP"},
	}
	b := Evidence{
		BankAccounts:  []string{"999888777666", "123456789012"},
		PhoneNumbers:  []string{"9876543210"},
		PhishingLinks: []string{"https://bit.ly/xyz"},
	}
	c := Evidence{
		UPIDs:              []string{"other@paytm"},
		SuspiciousKeywords: []string{"KYC", "OTP"},
	}

	ab := Merge(a, b)
	ba := Merge(b, a)
	if !reflect.DeepEqual(ab, ba) {
		t.Errorf("merge not commutative:\n%+v\n%+v", ab, ba)
	}

	if got := Merge(ab, b); !reflect.DeepEqual(got, ab) {
		t.Errorf("merge not idempotent:\n%+v\n%+v", got, ab)
	}

	left := Merge(Merge(a, b), c)
	right := Merge(a, Merge(b, c))
	if !reflect.DeepEqual(left, right) {
		t.Errorf("merge not associative:\n%+v\n%+v", left, right)
	}

	if len(ab.BankAccounts) != 2 {
		t.Errorf("duplicate bank account not deduplicated: %v", ab.BankAccounts)
	}
}

func TestMergeNeverShrinks(t *testing.T) {
	base := Evidence{PhoneNumbers: []string{"9876543210"}}
	merged := Merge(base, Evidence{})

	if !reflect.DeepEqual(merged.PhoneNumbers, base.PhoneNumbers) {
		t.Errorf("merging empty evidence changed the set: %v", merged.PhoneNumbers)
	}
}

func TestCountExcludesKeywords(t *testing.T) {
	ev := Evidence{
		BankAccounts:       []string{"123456789012"},
		UPIDs:              []string{"fraud@ybl"},
		PhoneNumbers:       []string{"9876543210"},
		PhishingLinks:      []string{"https://bit.ly/xyz"},
		SuspiciousKeywords: []string{"urgent", "OTP", "KYC"},
	}

	if got := ev.Count(); got != 4 {
		t.Errorf("Count() = %d, want 4 (keywords must not count)", got)
	}
	if ev.IsEmpty() {
		t.Error("evidence with identifiers reported empty")
	}

	keywordsOnly := Evidence{SuspiciousKeywords: []string{"urgent"}}
	if keywordsOnly.Count() != 0 {
		t.Error("keyword-only evidence must have Count() == 0")
	}
	if keywordsOnly.IsEmpty() {
		t.Error("keyword-only evidence is not empty")
	}
}

func TestMergeEncodesEmptySetsAsArrays(t *testing.T) {
	// The reporting contract expects [] for empty sets, never null.
	raw, err := json.Marshal(Merge(Evidence{}, Evidence{}))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "null") {
		t.Errorf("merged evidence encodes null: %s", raw)
	}
}
