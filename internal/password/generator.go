// AngelaMos | 2026
// generator.go

package password

import (
	"fmt"

	"github.com/carterperez-dev/templates/erp-backend/internal/core"
)

const (
	upperChars = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerChars = "abcdefghijkmnopqrstuvwxyz"
	digitChars = "23456789"

	minTemporaryLength = 16
)

// GenerateTemporaryPassword returns a random password that satisfies
// ValidateComplexity, for administrator resets.
func (e *Engine) GenerateTemporaryPassword() (string, error) {
	length := max(e.minLength, minTemporaryLength)
	if e.maxBytes > 0 {
		length = min(length, e.maxBytes)
	}
	classes := []string{upperChars, lowerChars, digitChars, Symbols}
	all := upperChars + lowerChars + digitChars + Symbols

	out := make([]byte, 0, length)
	for _, class := range classes {
		c, err := pick(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	for len(out) < length {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	for i := len(out) - 1; i > 0; i-- {
		j, err := core.RandomIndex(i + 1)
		if err != nil {
			return "", fmt.Errorf("shuffle temporary password: %w", err)
		}
		out[i], out[j] = out[j], out[i]
	}

	return string(out), nil
}

func pick(set string) (byte, error) {
	i, err := core.RandomIndex(len(set))
	if err != nil {
		return 0, fmt.Errorf("generate temporary password: %w", err)
	}
	return set[i], nil
}
