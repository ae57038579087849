// Package pronounce applies pronunciation substitution to narration text and
// derives the audio file names for generated assets.
package pronounce

import (
	"regexp"
	"strings"
	"time"

	"github.com/book-expert/narration-service/internal/core"
)

// DefaultRuleSet is the rule set assumed for requests and rules that predate
// named rule sets.
const DefaultRuleSet = "language1"

// Timestamp layout for generated file names (YYYYMMDD-HHmmss).
const filenameTimestampLayout = "20060102-150405"

const audioFileExtension = ".mp3"

// Precompiled patterns shared by all substituters.
var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	slugPattern       = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	titlePattern      = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
)

const nonBreakingSpace = " "

type compiledRule struct {
	pattern       *regexp.Regexp
	pronunciation string
	ruleSet       string
}

// Substituter performs case-insensitive literal word replacement using a
// fixed rule table, filtered per request by rule set. Patterns are compiled
// once at construction.
type Substituter struct {
	rules []compiledRule
}

// NewSubstituter compiles the rule table. Rules without a rule set are
// normalized onto DefaultRuleSet. Rules with an empty word are skipped, as
// they would otherwise match everywhere.
func NewSubstituter(rules []core.PronunciationRule) *Substituter {
	compiled := make([]compiledRule, 0, len(rules))

	for _, rule := range rules {
		if rule.Word == "" {
			continue
		}

		ruleSet := rule.RuleSet
		if ruleSet == "" {
			ruleSet = DefaultRuleSet
		}

		compiled = append(compiled, compiledRule{
			pattern:       regexp.MustCompile(`(?i)` + regexp.QuoteMeta(rule.Word)),
			pronunciation: rule.Pronunciation,
			ruleSet:       ruleSet,
		})
	}

	return &Substituter{rules: compiled}
}

// Apply replaces each matching rule's word with its pronunciation, in rule
// order, using only the rules belonging to ruleSet. Matching is
// case-insensitive; replacement is literal.
func (s *Substituter) Apply(ruleSet, text string) string {
	if ruleSet == "" {
		ruleSet = DefaultRuleSet
	}

	for _, rule := range s.rules {
		if rule.ruleSet != ruleSet {
			continue
		}

		text = rule.pattern.ReplaceAllLiteralString(text, rule.pronunciation)
	}

	return text
}

// CollapseWhitespace converts non-breaking spaces to plain spaces, collapses
// runs of whitespace to single spaces, and trims the ends.
func CollapseWhitespace(text string) string {
	text = strings.ReplaceAll(text, nonBreakingSpace, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// CleanTitle strips punctuation from an entry title and truncates it to
// limit runes. A limit of zero or less leaves the length unchanged.
func CleanTitle(title string, limit int) string {
	cleaned := strings.TrimSpace(titlePattern.ReplaceAllString(title, ""))

	if limit > 0 {
		runes := []rune(cleaned)
		if len(runes) > limit {
			cleaned = string(runes[:limit])
		}
	}

	return cleaned
}

// Filename derives the audio file name for a title at a point in time:
// the slugged title, an "-audio-" marker, and a YYYYMMDD-HHmmss timestamp.
// Titles that slug to nothing fall back to a generic name so the result is
// never extension-only.
func Filename(title string, now time.Time) string {
	timestamp := now.Format(filenameTimestampLayout)

	slug := slugPattern.ReplaceAllString(title, "-")
	slug = strings.ToLower(strings.Trim(slug, "-"))

	if slug == "" {
		return "audio-file-" + timestamp + audioFileExtension
	}

	return slug + "-audio-" + timestamp + audioFileExtension
}
