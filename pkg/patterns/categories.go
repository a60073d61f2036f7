package patterns

import "golang.org/x/text/language"

// =============================================================================
// PATTERN DEFINITIONS BY CATEGORY
// All patterns are registered here and compiled once at package init.
// This provides a single source of truth for all scam indicator patterns.
//
// Latin-script patterns use (?i); non-Latin patterns match literally.
// Go's \b is ASCII-only, so non-Latin patterns must not use word boundaries.
// =============================================================================

// --- URGENCY PATTERNS (language-keyed: declared language adds its own set) ---
func (r *Registry) registerUrgencyPatterns() {
	cat := CategoryUrgency

	r.register("urgent", `(?i)urgently?`, cat, language.English, "Urgency wording")
	r.register("immediate", `(?i)immediately?`, cat, language.English, "Immediate action demand")
	r.register("right_now", `(?i)right\s+now`, cat, language.English, "Right-now pressure")
	r.register("act_now", `(?i)act\s+now`, cat, language.English, "Act-now pressure")
	r.register("limited_time", `(?i)limited\s+time`, cat, language.English, "Limited-time pressure")
	r.register("expires_soon", `(?i)expires?\s+(soon|today|tonight)`, cat, language.English, "Expiry deadline")
	r.register("within_hours", `(?i)within\s+\d+\s+(hours?|minutes?)`, cat, language.English, "Countdown deadline")
	r.register("before_deadline", `(?i)before\s+\d+`, cat, language.English, "Numeric deadline")

	r.register("hi_turant", `तुरंत`, cat, language.Hindi, "Hindi: immediately")
	r.register("hi_jaldi", `जल्दी`, cat, language.Hindi, "Hindi: quickly")
	r.register("hi_abhi", `अभी`, cat, language.Hindi, "Hindi: right now")
	r.register("hi_limited", `समय\s+सीमित`, cat, language.Hindi, "Hindi: limited time")

	r.register("ta_udanadi", `உடனடி`, cat, language.Tamil, "Tamil: immediate")
	r.register("ta_viraivaga", `விரைவாக`, cat, language.Tamil, "Tamil: quickly")
	r.register("ta_ippodhe", `இப்போதே`, cat, language.Tamil, "Tamil: right now")

	r.register("te_takshanam", `తక్షణం`, cat, language.Telugu, "Telugu: immediately")
	r.register("te_ventane", `వెంటనే`, cat, language.Telugu, "Telugu: at once")
	r.register("te_ippude", `ఇప్పుడే`, cat, language.Telugu, "Telugu: right now")

	r.register("ml_udan", `ഉടൻ`, cat, language.Malayalam, "Malayalam: immediately")
	r.register("ml_vegam", `വേഗം`, cat, language.Malayalam, "Malayalam: quickly")
	r.register("ml_ippol", `ഇപ്പോൾ`, cat, language.Malayalam, "Malayalam: right now")
}

// --- IMPERSONATION PATTERNS (always active) ---
func (r *Registry) registerImpersonationPatterns() {
	cat := CategoryImpersonation

	r.register("bank_brand", `(?i)\b(bank|HDFC|ICICI|SBI|Axis|Kotak|PNB)\b`, cat, language.English, "Bank impersonation")
	r.register("wallet_brand", `(?i)\b(PayTM|PhonePe|GPay|Google\s+Pay|WhatsApp)\b`, cat, language.English, "Payment app impersonation")
	r.register("government", `(?i)\b(government|ministry|RBI|income\s+tax|GST)\b`, cat, language.English, "Government impersonation")
	r.register("law_enforcement", `(?i)\b(police|cyber\s+cell|law\s+enforcement)\b`, cat, language.English, "Police impersonation")
	r.register("courier_brand", `(?i)\b(Amazon|Flipkart|courier|delivery)\b`, cat, language.English, "Retail/courier impersonation")
	r.register("hi_sarkar", `सरकार`, cat, language.English, "Hindi: government")
	r.register("hi_police", `पुलिस`, cat, language.English, "Hindi: police")
	r.register("hi_bank", `बैंक`, cat, language.English, "Hindi: bank")
}

// --- FINANCIAL REQUEST PATTERNS (always active) ---
func (r *Registry) registerFinancialPatterns() {
	cat := CategoryFinancial

	r.register("account_trouble", `(?i)\baccount\s+(number|details|blocked|suspended)`, cat, language.English, "Account detail/status pretext")
	r.register("hi_account_trouble", `खाता\s*(नंबर|बंद)`, cat, language.English, "Hindi: account number/closed")
	r.register("secret_codes", `(?i)\b(CVV|OTP|PIN)\b`, cat, language.English, "One-time code or PIN request")
	r.register("hi_secret_codes", `(सीवीवी|ओटीपी|पिन)`, cat, language.English, "Hindi: CVV/OTP/PIN")
	r.register("card_details", `(?i)\bcard\s+(number|details|expired)`, cat, language.English, "Card detail request")
	r.register("hi_card_details", `कार्ड\s*(नंबर)`, cat, language.English, "Hindi: card number")
	r.register("upi_credentials", `(?i)\bUPI\s+(ID|pin|password)`, cat, language.English, "UPI credential request")
	r.register("hi_upi", `यूपीआई`, cat, language.English, "Hindi: UPI")
	r.register("verify_kyc", `(?i)\b(verify|confirm)\s+(KYC|details|account)`, cat, language.English, "KYC verification pretext")
	r.register("hi_verify", `(सत्यापित|पुष्टि)`, cat, language.English, "Hindi: verify/confirm")
	r.register("refund_bait", `(?i)\b(refund|cashback|reward|prize)\b`, cat, language.English, "Refund/reward bait")
	r.register("hi_refund_bait", `(रिफंड|इनाम)`, cat, language.English, "Hindi: refund/reward")
}

// --- PHISHING PATTERNS (always active) ---
func (r *Registry) registerPhishingPatterns() {
	cat := CategoryPhishing

	r.register("click_here", `(?i)click\s+(here|link|below)`, cat, language.English, "Click solicitation")
	r.register("download_app", `(?i)download\s+app`, cat, language.English, "App download solicitation")
	r.register("install_now", `(?i)install\s+(now|application)`, cat, language.English, "Install solicitation")
	r.register("update_details", `(?i)update\s+(details|information|account)`, cat, language.English, "Detail update solicitation")
	r.register("url_shortener", `(?i)bit\.ly|tinyurl|goo\.gl`, cat, language.English, "URL shortener")
	r.register("hi_click", `यहां\s+क्लिक`, cat, language.English, "Hindi: click here")
	r.register("hi_link", `लिंक\s+पर`, cat, language.English, "Hindi: on the link")
}

// --- PRIZE / LOTTERY LURE PATTERNS (always active) ---
func (r *Registry) registerLurePatterns() {
	cat := CategoryLure

	r.register("winner", `(?i)\b(won|winner|congratulations)\b`, cat, language.English, "Winner announcement")
	r.register("hi_winner", `(जीत|विजेता|बधाई)`, cat, language.English, "Hindi: won/winner/congrats")
	r.register("prize", `(?i)\b(prize|lottery|reward)\b`, cat, language.English, "Prize/lottery bait")
	r.register("hi_prize", `(इनाम|लॉटरी|पुरस्कार)`, cat, language.English, "Hindi: prize/lottery")
	r.register("claim_now", `(?i)\bclaim\s+(now|today)`, cat, language.English, "Claim-now pressure")
	r.register("hi_claim", `दावा\s*(अभी)?`, cat, language.English, "Hindi: claim")
	r.register("rupee_amount", `₹\s*\d+\s*(lakh|lakhs|crore|crores|thousand)`, cat, language.English, "Large rupee amount")
}

// --- SUSPICIOUS KEYWORD LISTS (evidence extractor) ---
// English keywords are always checked (case-insensitive substring); the
// declared language's list is matched literally.
func (r *Registry) registerSuspiciousKeywords() {
	r.keywords[language.English] = []string{
		"urgent", "verify", "account blocked", "suspended", "confirm details",
		"click here", "immediate action", "prize", "winner", "lottery",
		"refund", "cashback", "KYC", "OTP", "bank details", "CVV",
		"card number", "expired", "update now", "limited time", "act now",
	}
	r.keywords[language.Hindi] = []string{
		"तुरंत", "जल्दी", "खाता बंद", "पुष्टि करें", "अभी करें",
		"इनाम", "जीत", "रिफंड", "केवाईसी", "ओटीपी", "बैंक विवरण",
	}
	r.keywords[language.Tamil] = []string{
		"உடனடி", "சரிபார்", "கணக்கு முடக்கம்", "உறுதிப்படுத்து",
		"பரிசு", "வெற்றி", "திருப்பி", "வங்கி விவரங்கள்",
	}
	r.keywords[language.Telugu] = []string{
		"తక్షణం", "ధృవీకరించు", "ఖాతా నిలిపివేయబడింది", "నిర్ధారించండి",
		"బహుమతి", "విజేత", "వాపసు", "బ్యాంక్ వివరాలు",
	}
	r.keywords[language.Malayalam] = []string{
		"ഉടന്", "സ്ഥിരീകരിക്കുക", "അക്കൗണ്ട് തടഞ്ഞു", "സമ്മാനം",
		"വിജയി", "റിഫണ്ട്", "ബാങ്ക് വിവരങ്ങൾ",
	}
}
