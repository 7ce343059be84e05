package translate

import (
	"regexp"
	"strings"

	"chatify-service/internal/models"
)

var itemPrefix = regexp.MustCompile(`^\s*\d+\.\s*`)

// ParseVariants splits the translator's raw output into the fixed
// variant slots. The contract is a newline-delimited block of up to
// three lines, each optionally prefixed with "<n>. "; blank lines are
// skipped and extra lines ignored. When nothing usable comes back the
// first slot falls back to the original text so the message always has
// a displayable translation.
func ParseVariants(raw, original string) [models.VariantCount]string {
	var variants [models.VariantCount]string

	i := 0
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(itemPrefix.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		variants[i] = line
		i++
		if i == models.VariantCount {
			break
		}
	}

	if variants[0] == "" {
		variants[0] = original
	}
	return variants
}
