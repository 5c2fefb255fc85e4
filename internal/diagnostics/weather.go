package diagnostics

import "strings"

// stormTokens mark metadata that describes active severe weather.
var stormTokens = []string{
	"storm",
	"convective",
	"heavy rain",
	"thunder",
	"squall",
	"advisory",
	"typhoon",
	"hurricane",
	"tornado",
	"blizzard",
	"hail",
}

// Stormy reports whether metadata mentions severe weather. Mentions negated
// within their clause ("No convective storms.") do not count.
func Stormy(metadata string) bool {
	lowered := strings.ToLower(metadata)
	for _, clause := range strings.FieldsFunc(lowered, func(r rune) bool {
		return r == '.' || r == ',' || r == ';' || r == '\n'
	}) {
		for _, token := range stormTokens {
			i := strings.Index(clause, token)
			if i < 0 {
				continue
			}
			if !negated(clause[:i]) {
				return true
			}
		}
	}
	return false
}

func negated(prefix string) bool {
	for _, w := range strings.Fields(prefix) {
		switch w {
		case "no", "not", "without", "zero":
			return true
		}
	}
	return false
}
