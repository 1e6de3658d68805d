// Package pattern matches user-defined rules against text that may be
// deliberately obfuscated with exotic characters, spaced-out letters,
// or combining-mark decoration.
package pattern

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// RuleSet maps rule names to their compiled patterns.
type RuleSet map[string]*regexp.Regexp

// spacedLetters matches runs of two or more single letters separated by
// whitespace, e.g. "K A R A O K E".
var spacedLetters = regexp.MustCompile(`\b[A-Za-z](?:\s+[A-Za-z])+\b`)

// markStripper removes combining characters and accent marks commonly
// used as part of "zalgo" text. Because the goal is locating keywords
// in user-defined rules, no attempt is made to preserve
// internationalization.
var markStripper = runes.Remove(runes.Predicate(func(r rune) bool {
	return unicode.In(r, unicode.Mn, unicode.Me)
}))

// StripMarks removes combining and enclosing marks from text.
func StripMarks(text string) string {
	out, _, err := transform.String(markStripper, text)
	if err != nil {
		return text
	}
	return out
}

// CollapseSpacedLetters merges single characters that are spaced out so
// "K A R A O K E" reads as "KARAOKE".
func CollapseSpacedLetters(text string) string {
	return spacedLetters.ReplaceAllStringFunc(text, func(run string) string {
		return strings.Join(strings.Fields(run), "")
	})
}

// Matches returns the names of all rules whose pattern matches any
// normalized variant of the input: the raw text, an ASCII
// transliteration, the transliteration with spaced-out letters
// collapsed, and the text with combining marks stripped. The result is
// sorted for deterministic output.
func Matches(rules RuleSet, input string) []string {
	transliterated := unidecode.Unidecode(input)
	haystacks := []string{
		input,
		transliterated,
		CollapseSpacedLetters(transliterated),
		StripMarks(input),
	}

	var matched []string
	for name, re := range rules {
		for _, haystack := range haystacks {
			if re.MatchString(haystack) {
				matched = append(matched, name)
				break
			}
		}
	}
	sort.Strings(matched)
	return matched
}
