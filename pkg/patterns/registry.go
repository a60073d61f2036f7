// Package patterns provides a centralized, high-performance pattern registry
// for scam detection. All regex patterns are compiled once at package init
// and shared across the classifier and the evidence extractor.
//
// Design principles:
//   - COMPILE ONCE: All patterns compiled at init, not per-request
//   - DRY: Single source of truth for all scam indicator patterns
//   - CATEGORIZED: Patterns organized by scam category for weighted scoring
//   - LANGUAGE-TAGGED: English patterns are always active; the conversation's
//     declared language activates its own additional set
package patterns

import (
	"regexp"
	"sync"

	"golang.org/x/text/language"
)

// Category represents a scam indicator category
type Category string

const (
	CategoryUrgency       Category = "urgency"
	CategoryImpersonation Category = "impersonation"
	CategoryFinancial     Category = "financial_request"
	CategoryPhishing      Category = "phishing"
	CategoryLure          Category = "lure"
)

// ScamCategories lists every rule category the classifier evaluates,
// in scoring order.
var ScamCategories = []Category{
	CategoryUrgency,
	CategoryImpersonation,
	CategoryFinancial,
	CategoryPhishing,
	CategoryLure,
}

// SupportedLanguages are the conversation languages with dedicated pattern
// and keyword sets. English is the baseline and applies to every conversation.
var SupportedLanguages = []language.Tag{
	language.English,
	language.Hindi,
	language.Tamil,
	language.Telugu,
	language.Malayalam,
}

// Pattern holds a compiled regex with metadata
type Pattern struct {
	Name        string         // Human-readable name for logging
	Regex       *regexp.Regexp // Compiled regex (never nil after init)
	Category    Category       // Scam category
	Lang        language.Tag   // Language this pattern belongs to
	Description string         // What this pattern detects
}

// Registry holds all compiled patterns, organized by category, plus the
// per-language suspicious keyword lists used by the evidence extractor.
type Registry struct {
	mu         sync.RWMutex
	byCategory map[Category][]*Pattern
	all        []*Pattern
	keywords   map[language.Tag][]string
}

// global singleton - initialized once at package load
var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the global pattern registry (singleton)
// Thread-safe and guaranteed to be initialized
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = newRegistry()
	})
	return globalRegistry
}

// newRegistry creates and populates the pattern registry
func newRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category][]*Pattern),
		all:        make([]*Pattern, 0, 64),
		keywords:   make(map[language.Tag][]string),
	}

	r.registerUrgencyPatterns()
	r.registerImpersonationPatterns()
	r.registerFinancialPatterns()
	r.registerPhishingPatterns()
	r.registerLurePatterns()
	r.registerSuspiciousKeywords()

	return r
}

// register adds a pattern to the registry (internal use only)
func (r *Registry) register(name string, pattern string, cat Category, lang language.Tag, description string) {
	compiled := regexp.MustCompile(pattern)
	p := &Pattern{
		Name:        name,
		Regex:       compiled,
		Category:    cat,
		Lang:        lang,
		Description: description,
	}

	r.byCategory[cat] = append(r.byCategory[cat], p)
	r.all = append(r.all, p)
}

// activeFor reports whether a pattern applies to a conversation declared in
// the given language. English patterns are always active.
func (p *Pattern) activeFor(lang language.Tag) bool {
	return p.Lang == language.English || p.Lang == lang
}

// GetByCategory returns all patterns for a specific category regardless of
// language. Returns empty slice if category not found (never nil).
func (r *Registry) GetByCategory(cat Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if patterns, ok := r.byCategory[cat]; ok {
		return patterns
	}
	return []*Pattern{}
}

// MatchCategory returns all patterns of one category that match the text,
// restricted to patterns active for the given conversation language.
func (r *Registry) MatchCategory(text string, lang language.Tag, cat Category) []*Pattern {
	r.mu.RLock()
	patterns := r.byCategory[cat]
	r.mu.RUnlock()

	var matches []*Pattern
	for _, p := range patterns {
		if p.activeFor(lang) && p.Regex.MatchString(text) {
			matches = append(matches, p)
		}
	}
	return matches
}

// MatchAny checks if text matches any pattern in the given categories for
// the given language. Returns the first matching pattern or nil.
// Optimized for early exit on first match.
func (r *Registry) MatchAny(text string, lang language.Tag, cats ...Category) *Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cat := range cats {
		for _, p := range r.byCategory[cat] {
			if p.activeFor(lang) && p.Regex.MatchString(text) {
				return p
			}
		}
	}
	return nil
}

// SuspiciousKeywords returns the curated keyword list for a language.
// Returns empty slice for unregistered languages (never nil).
func (r *Registry) SuspiciousKeywords(lang language.Tag) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if kw, ok := r.keywords[lang]; ok {
		return kw
	}
	return []string{}
}

// AddKeywords appends extra keywords to a language's list. Used to layer
// operator-supplied keyword files on top of the built-in lists.
func (r *Registry) AddKeywords(lang language.Tag, words []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.keywords[lang] = append(r.keywords[lang], words...)
}

// TotalPatterns returns the total count of registered patterns
func (r *Registry) TotalPatterns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// CategoryCount returns the number of patterns in a category
func (r *Registry) CategoryCount(cat Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCategory[cat])
}

// languageNames maps the display names accepted on the wire to tags.
// The upstream channel integrations send names, not BCP-47 codes.
var languageNames = map[string]language.Tag{
	"english":   language.English,
	"hindi":     language.Hindi,
	"tamil":     language.Tamil,
	"telugu":    language.Telugu,
	"malayalam": language.Malayalam,
}

var languageMatcher = language.NewMatcher(SupportedLanguages)

// ResolveLanguage maps a declared language (display name like "Hindi" or a
// BCP-47 tag like "hi-IN") to a supported tag. Unknown or empty input
// resolves to English.
func ResolveLanguage(s string) language.Tag {
	if s == "" {
		return language.English
	}
	if tag, ok := languageNames[lowerASCII(s)]; ok {
		return tag
	}
	parsed, err := language.Parse(s)
	if err != nil {
		return language.English
	}
	tag, _, conf := languageMatcher.Match(parsed)
	if conf == language.No {
		return language.English
	}
	// The matcher can return a regional variant; collapse to the base tag.
	base, _ := tag.Base()
	for _, sup := range SupportedLanguages {
		if b, _ := sup.Base(); b == base {
			return sup
		}
	}
	return language.English
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
