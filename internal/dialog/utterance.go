package dialog

import (
	"fmt"
	"regexp"
)

// Intent is the canonical classification of a free-text reply.
type Intent int

const (
	IntentUnmatched Intent = iota
	IntentAffirmative
	IntentNegative
)

// Canonical word lists, matched case-insensitively against the whole reply.
// "yes please" is not affirmative; branch authors who want looser matching
// supply their own pattern.
var (
	affirmativeRe = regexp.MustCompile(`(?i)^\s*(yes|yea|yeah|yah|yep|yup|ya|sure|ok|okay|y)\s*$`)
	negativeRe    = regexp.MustCompile(`(?i)^\s*(no|nah|nope|never|n)\s*$`)
)

// Classify buckets a reply into affirmative, negative or unmatched.
func Classify(text string) Intent {
	switch {
	case affirmativeRe.MatchString(text):
		return IntentAffirmative
	case negativeRe.MatchString(text):
		return IntentNegative
	default:
		return IntentUnmatched
	}
}

// Matcher reports whether a reply selects a branch.
type Matcher func(text string) bool

// MatchAffirmative accepts canonical affirmative replies.
var MatchAffirmative Matcher = affirmativeRe.MatchString

// MatchNegative accepts canonical negative replies.
var MatchNegative Matcher = negativeRe.MatchString

// MatchPattern builds a Matcher from a case-insensitive, unanchored regex.
func MatchPattern(pattern string) (Matcher, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile branch pattern %q: %w", pattern, err)
	}
	return re.MatchString, nil
}

// Branch is one possible continuation of a question. Exactly one of Match or
// Default must be set; a Default branch is selected only after every
// non-default matcher has failed, wherever it sits in the list.
type Branch struct {
	Match   Matcher
	Default bool
	Action  BranchAction
}

// selectBranch picks the branch for a reply: non-default branches in list
// order first, then the default if nothing accepted. Returns nil when the
// reply is unmatched and no default exists.
func selectBranch(branches []Branch, text string) *Branch {
	for i := range branches {
		b := &branches[i]
		if b.Default || b.Match == nil {
			continue
		}
		if b.Match(text) {
			return b
		}
	}
	for i := range branches {
		if branches[i].Default {
			return &branches[i]
		}
	}
	return nil
}

// validateBranches enforces the single-default rule and that non-default
// branches carry a matcher.
func validateBranches(branches []Branch) error {
	defaults := 0
	for i, b := range branches {
		if b.Default {
			defaults++
			continue
		}
		if b.Match == nil {
			return fmt.Errorf("branch %d has neither matcher nor default flag", i)
		}
	}
	if defaults > 1 {
		return fmt.Errorf("at most one default branch is permitted, got %d", defaults)
	}
	return nil
}
