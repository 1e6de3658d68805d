package pattern_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lunarchive/lunarchive/internal/pattern"
)

func testRules() pattern.RuleSet {
	return pattern.RuleSet{
		"unarchived":  regexp.MustCompile(`(?i)(\W|^)unar?chived?`),
		"karaoke":     regexp.MustCompile(`(?i)(\W|^)karaoke`),
		"rebroadcast": regexp.MustCompile(`(?i)(\W|^)re-?broadcast`),
	}
}

// zalgoTitle spells "UNARCHIVED KARAOKE" with heavy combining-mark
// decoration, bracketed by CJK corner brackets.
const zalgoTitle = "【" +
	"U̷̘̳͙̍̀́̉̈́̌̓͑̇̊͘͘̕ͅ" +
	"Ṇ̸̣̩̹̜͖̰̫̙̤̩̟̓͒́͝" +
	"A̸̢̟͔̝̰̞̦̯͇̅͆̍̈͐̒̒͗̂͌" +
	"Ṛ̴̎" +
	"C̴̜̖̘͑͊̅̀̒̅̒̚͝ͅ" +
	"H̵͉̪̹͊͐̇́̔̄͒͌̓͒͘" +
	"Į̶̨̖̮̩̫͕̼̺̥̝͎͇͂͋͑̿̿ͅ" +
	"Ṿ̴̈̈́͗̇̋̈̊̆̈́̃̓̓̕͝͝" +
	"Ĕ̴̡̧̙͔̬̖͚̤̻̠̝͍̦̮̽͂̾͘" +
	"D̴̺͕̭̮͈̽͛̐͒̎͝" +
	" ̸̛̻͕̫̝̪̬̲̊͆̾̒͊̊́͋̈́́̆̉͋͘" +
	"K̶̡̛̗̲̦̮̬͖͇̮̓̈̓̍̈̿̎́̄͋̈͌͂̓͜" +
	"À̸̡̛̳͓̲͍̖̤̹̽͒͗̉̍̈̏̚͜ͅ" +
	"R̴̘̗̦͙͈̮̤̾̽͑͋̊̿̐̎̄̆̎̾̕͜" +
	"A̷̼̩̯͖̰̗͓̩̠͖̝̲̍̓̆̓̏̽̀͆̈̒͝͠" +
	"Ǫ̷̛̰͓̳̞͙̹̯̲͈͈̩̃̇̉͗̈́̒̾͘͜" +
	"K̵̼̬̑͌̾̈́̀" +
	"E̵̛̖͍̞͇̻̖͕̼̹͚̤̭̟͙̿̀̈́̄̒͐̃̎̎̓͜" +
	"】 SPOOKY SCARY"

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "exotic unicode substituted with ascii",
			input:    "【UNARCHIVE KARAOKE】TO ALL THE LONELY BUT LOVELY AXELOTLS OUT THERE♡【𝐑𝐄𝐁𝐑𝐎𝐀𝐃𝐂𝐀𝐒𝐓】",
			expected: []string{"karaoke", "rebroadcast", "unarchived"},
		},
		{
			name:     "spaces between single characters",
			input:    "【K A R A O K E】rock",
			expected: []string{"karaoke"},
		},
		{
			name:     "zalgo decoration stripped",
			input:    zalgoTitle,
			expected: []string{"karaoke", "unarchived"},
		},
		{
			name:     "no match",
			input:    "regular members-only stream",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, pattern.Matches(testRules(), tt.input))
		})
	}
}

func TestCollapseSpacedLetters(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"K A R A O K E", "KARAOKE"},
		{"singing k a r a o k e tonight", "singing karaoke tonight"},
		{"a cat", "a cat"},
		{"plain title", "plain title"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, pattern.CollapseSpacedLetters(tt.input))
	}
}

func TestStripMarks(t *testing.T) {
	assert.Equal(t, "UN", pattern.StripMarks("U̷̍N̸̓"))
	assert.Equal(t, "plain", pattern.StripMarks("plain"))
}
