package engine

import (
	"strconv"
	"strings"

	"github.com/Alturino/storefront/internal/catalog"
)

type Pricer interface {
	PriceLabel() string
}

// ParsePrice reads a grouped price label such as "25,000". The undisclosed
// sentinel and anything without a leading integer count as 0. Like a
// browser parseInt, parsing stops at the first non digit ("12.5" is 12).
func ParsePrice(label string) int64 {
	if label == catalog.PriceUndisclosed {
		return 0
	}
	s := strings.TrimLeft(strings.ReplaceAll(label, ",", ""), " \t\n\r")

	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func Total[T Pricer](items []T) int64 {
	var total int64
	for _, item := range items {
		total += ParsePrice(item.PriceLabel())
	}
	return total
}
