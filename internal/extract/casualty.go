package extract

import (
	"regexp"
	"strconv"
)

var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"a": 1, "an": 1, "both": 2,
}

// Subject-then-verb and recovery-count phrasings, matched against
// lowercased text. Counts above ten must be written as digits.
var fatalityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b([a-z]+|\d{1,2})\s+(?:men|women|people|persons|climbers|mountaineers|alpinists|hikers|skiers|snowboarders|scramblers)\b[^.]{0,40}?\b(?:killed|dead|deceased|died|perished|missing|unaccounted)\b`),
	regexp.MustCompile(`\bbodies\s+of\s+(?:the\s+)?([a-z]+|\d{1,2})\b`),
	regexp.MustCompile(`\b([a-z]+|\d{1,2})\s+(?:bodies|victims|fatalities|deaths)\b`),
	regexp.MustCompile(`\bkilled\s+([a-z]+|\d{1,2})\s+(?:men|women|people|persons|climbers|mountaineers|hikers|skiers)\b`),
}

// FatalityCount scans lowercased text for a death toll. The first pattern
// that matches with a parseable count wins; nil means no toll was stated.
func FatalityCount(lower string) *int {
	for _, re := range fatalityPatterns {
		for _, m := range re.FindAllStringSubmatch(lower, -1) {
			if n, ok := parseCount(m[1]); ok {
				return &n
			}
		}
	}
	return nil
}

func parseCount(s string) (int, bool) {
	if n, ok := wordNumbers[s]; ok {
		return n, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 99 {
		return 0, false
	}
	return n, true
}
