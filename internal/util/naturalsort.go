package util

import (
	"regexp"
	"strings"
)

var naturalTokens = regexp.MustCompile(`(\d+|\D+)`)

type naturalToken struct {
	text  string
	isNum bool
}

func naturalTokenize(s string) []naturalToken {
	parts := naturalTokens.FindAllString(s, -1)
	tokens := make([]naturalToken, len(parts))
	for i, p := range parts {
		if p[0] >= '0' && p[0] <= '9' {
			tokens[i] = naturalToken{text: strings.TrimLeft(p, "0"), isNum: true}
		} else {
			tokens[i] = naturalToken{text: strings.ToLower(p)}
		}
	}
	return tokens
}

// NaturalLess orders names so that embedded numbers compare by value,
// "main2.php" before "main10.php". Letters compare case-insensitively.
func NaturalLess(a, b string) bool {
	ta, tb := naturalTokenize(a), naturalTokenize(b)
	for i := 0; i < min(len(ta), len(tb)); i++ {
		x, y := ta[i], tb[i]
		if x.isNum != y.isNum {
			// Numbers first.
			return x.isNum
		}
		if x.isNum && len(x.text) != len(y.text) {
			return len(x.text) < len(y.text)
		}
		if x.text != y.text {
			return x.text < y.text
		}
	}
	if len(ta) != len(tb) {
		return len(ta) < len(tb)
	}
	// Fall back to byte order so the result is a strict total order.
	return a < b
}
