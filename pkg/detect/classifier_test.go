package detect

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/text/language"
)

func TestClassifyScamScenarios(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		lang        language.Tag
		wantScam    bool
		wantReasons []string
	}{
		{
			name:     "bank impersonation with otp and urgency",
			text:     "Dear customer, this is SBI. Share your OTP immediately to verify KYC.",
			lang:     language.English,
			wantScam: true,
			wantReasons: []string{
				"Urgency tactics detected",
				"Impersonation of trusted entity",
				"Requesting sensitive financial information",
			},
		},
		{
			name:     "lottery lure with shortened link",
			text:     "Congratulations! You won a lottery prize. Click here https://bit.ly/claim123",
			lang:     language.English,
			wantScam: true,
			wantReasons: []string{
				"Phishing attempt detected",
				"Prize/lottery scam indicators",
				"Contains URL link",
			},
		},
		{
			name:     "benign small talk",
			text:     "Are we still meeting for lunch tomorrow?",
			lang:     language.English,
			wantScam: false,
		},
		{
			name:     "benign with plain url only",
			text:     "Here is the doc https://example.com/notes",
			lang:     language.English,
			wantScam: false,
			wantReasons: []string{
				"Contains URL link",
			},
		},
		{
			name:     "hindi scam in declared hindi",
			text:     "तुरंत अपना ओटीपी भेजें, आपका बैंक खाता बंद हो जाएगा",
			lang:     language.Hindi,
			wantScam: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text, tt.lang)

			if got.IsScam != tt.wantScam {
				t.Errorf("IsScam = %v (confidence %.2f, reasons %v), want %v",
					got.IsScam, got.Confidence, got.Reasons, tt.wantScam)
			}
			if got.IsScam && got.Confidence < ScamThreshold {
				t.Errorf("flagged scam with confidence %.2f below threshold", got.Confidence)
			}
			for _, want := range tt.wantReasons {
				if !containsString(got.Reasons, want) {
					t.Errorf("missing reason %q in %v", want, got.Reasons)
				}
			}
		})
	}
}

func TestClassifyUrgencyCapped(t *testing.T) {
	// Four urgency hits and nothing else: the score must stop at the cap, not
	// accumulate per hit.
	got := Classify("Act now! Do it urgently, right now, immediately.", language.English)

	if math.Abs(got.Confidence-urgencyCap) > 1e-9 {
		t.Errorf("Confidence = %v, want urgency cap %v (reasons %v)", got.Confidence, urgencyCap, got.Reasons)
	}
	if got.IsScam {
		t.Error("urgency alone should not flag a scam")
	}
}

func TestClassifyConfidenceCeiling(t *testing.T) {
	text := "URGENT from SBI bank police: share OTP and CVV, click here https://bit.ly/x " +
		"to claim your lottery prize now, act immediately, account suspended"
	got := Classify(text, language.English)

	if got.Confidence > 1.0 {
		t.Errorf("Confidence = %v, must not exceed 1.0", got.Confidence)
	}
	if !got.IsScam {
		t.Error("kitchen-sink scam text should be flagged")
	}
}

func TestClassifyDeclaredLanguageScoping(t *testing.T) {
	// A Hindi urgency word scores only when the conversation is declared Hindi.
	hindiText := "तुरंत"

	if got := Classify(hindiText, language.Hindi); got.Confidence == 0 {
		t.Error("hindi urgency pattern should score for declared hindi")
	}
	if got := Classify(hindiText, language.English); got.Confidence != 0 {
		t.Errorf("hindi urgency pattern scored %.2f for declared english", got.Confidence)
	}
}

func TestClassifyPure(t *testing.T) {
	text := "Congratulations! You won ₹5 lakh. Verify KYC at https://bit.ly/xyz immediately"
	first := Classify(text, language.English)
	for i := 0; i < 5; i++ {
		if got := Classify(text, language.English); !reflect.DeepEqual(got, first) {
			t.Fatalf("classification is not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestClassifyDedupesMatchedTerms(t *testing.T) {
	got := Classify("urgent urgent urgent", language.English)

	seen := map[string]int{}
	for _, term := range got.MatchedTerms {
		seen[strings.ToLower(term)]++
	}
	for term, n := range seen {
		if n > 1 {
			t.Errorf("term %q appears %d times in MatchedTerms", term, n)
		}
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func BenchmarkClassify(b *testing.B) {
	text := "URGENT: Your SBI account is suspended. Share your OTP to verify KYC at https://bit.ly/verify"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Classify(text, language.English)
	}
}
