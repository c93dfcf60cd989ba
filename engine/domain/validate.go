package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// SQL/NoSQL fragments that should never appear in a user query.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|EXEC|UNION)\b.*\b(TABLE|FROM|INTO|SELECT|SET)\b`),
	regexp.MustCompile(`(?i)(--|;)\s*(DROP|DELETE|SELECT)`),
	regexp.MustCompile(`(?i)\$\{.*\}`),            // template injection
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`), // NoSQL operator injection
}

// Profanity word list (lowercase, basic set).
var profanityWords = map[string]bool{
	"fuck": true, "shit": true, "ass": true, "bitch": true,
	"damn": true, "cunt": true, "dick": true, "piss": true,
}

const (
	minQueryLength = 3
	maxQueryLength = 2000
)

// ValidateQuery validates a retrieval query before it reaches the router.
func ValidateQuery(q Query) error {
	text := strings.TrimSpace(q.Text)

	// Length checks
	n := utf8.RuneCountInString(text)
	if n < minQueryLength {
		return NewValidationError("text", text, ErrQueryTooShort)
	}
	if n > maxQueryLength {
		return NewValidationError("text", text[:64], ErrQueryTooLong)
	}

	// Injection check
	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("text", text, ErrQueryInjection)
		}
	}

	// Profanity check (word-boundary split)
	lower := strings.ToLower(text)
	for _, word := range strings.Fields(lower) {
		// Strip common punctuation from edges
		cleaned := strings.Trim(word, ".,!?;:'\"()-")
		if profanityWords[cleaned] {
			return NewValidationError("text", cleaned, ErrQueryProfanity)
		}
	}

	// K is optional; zero means "use the default".
	if q.K < 0 || q.K > MaxTopK {
		return NewValidationError("k", fmt.Sprintf("%d", q.K), ErrKOutOfRange)
	}

	return nil
}
