// Package rewrite expands vague caregiver queries into specific retrieval
// queries before they reach the router. Vague phrasings retrieve poorly
// against a chunked knowledge base; the rewrites steer them toward the
// vocabulary the chunks actually use.
package rewrite

import (
	"regexp"
	"strings"
)

type rule struct {
	pattern *regexp.Regexp
	query   string
}

// Rules are checked in order; the first match wins. Patterns match the
// lowercased, trimmed query.
var rules = []rule{
	// General overview
	{regexp.MustCompile(`tell me about (?:alzheimer'?s?|dementia)`),
		"What is Alzheimer's disease? What are the main symptoms and causes?"},
	{regexp.MustCompile(`what is (?:alzheimer'?s?|dementia)\??$`),
		"What is Alzheimer's disease? What are the main symptoms?"},
	{regexp.MustCompile(`explain (?:alzheimer'?s?|dementia)`),
		"What is Alzheimer's disease? What are its causes and symptoms?"},

	// Help / support
	{regexp.MustCompile(`how (?:do i|can i|to) help (?:someone|a person|my (?:mom|dad|parent|loved one))`),
		"What are effective caregiving strategies for Alzheimer's patients?"},
	{regexp.MustCompile(`how (?:do i|to) (?:care for|take care of|look after)`),
		"What are best practices for caring for someone with Alzheimer's?"},

	// Symptoms
	{regexp.MustCompile(`what (?:are|is) (?:the )?symptoms?\??$`),
		"What are the symptoms of Alzheimer's disease?"},
	{regexp.MustCompile(`signs? of (?:alzheimer'?s?|dementia)$`),
		"What are the early signs and symptoms of Alzheimer's disease?"},
	{regexp.MustCompile(`(?:my )?(?:mom|dad|parent|loved one) is (?:forgetting|confused)`),
		"What are memory loss and confusion symptoms in Alzheimer's disease?"},

	// Treatment
	{regexp.MustCompile(`(?:what|any) treatments?\??$`),
		"What are the available treatments for Alzheimer's disease?"},
	{regexp.MustCompile(`(?:is there a )?cure\??$`),
		"What are current treatment options and research for Alzheimer's disease?"},

	// Progression
	{regexp.MustCompile(`what (?:are|is) (?:the )?stages?\??$`),
		"What are the stages of Alzheimer's disease progression?"},
	{regexp.MustCompile(`how (?:does|will) (?:it|the disease) progress`),
		"What is the progression and timeline of Alzheimer's disease?"},

	// Behavior
	{regexp.MustCompile(`(?:my )?(?:mom|dad|parent|loved one) is (?:aggressive|angry|agitated|wandering)`),
		"How to handle behavioral changes and aggression in Alzheimer's patients?"},
	{regexp.MustCompile(`behavior(?:al)? (?:changes|problems|issues)`),
		"What are behavioral symptoms of Alzheimer's and how to manage them?"},

	// Causes and prevention
	{regexp.MustCompile(`what causes (?:alzheimer'?s?|dementia)\??$`),
		"What are the causes and risk factors of Alzheimer's disease?"},
	{regexp.MustCompile(`how (?:to|can i) prevent (?:alzheimer'?s?|dementia)`),
		"What are prevention strategies and risk reduction for Alzheimer's disease?"},

	// Diagnosis
	{regexp.MustCompile(`how (?:is it|to (?:get|be)) diagnos(?:ed|is)`),
		"What is the diagnosis process and tests for Alzheimer's disease?"},

	// Communication
	{regexp.MustCompile(`how (?:to|do i) (?:talk to|communicate with|speak to)`),
		"What are effective communication strategies for Alzheimer's patients?"},

	// Support resources
	{regexp.MustCompile(`(?:where|how) (?:to|can i) (?:get|find) (?:help|support|resources)`),
		"What support resources are available for Alzheimer's caregivers?"},

	// Safety
	{regexp.MustCompile(`how (?:to|do i) (?:keep|make) (?:them |the house |home )?safe`),
		"What safety precautions and home modifications for Alzheimer's patients?"},
}

// Rewrite returns the expanded query and whether a rule matched. Queries that
// match no rule pass through untouched.
func Rewrite(query string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(query))
	for _, r := range rules {
		if r.pattern.MatchString(lower) {
			return r.query, true
		}
	}
	return query, false
}
