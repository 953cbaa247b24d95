package match

import (
	"regexp"
	"strings"
)

var (
	abbreviations = []struct {
		re   *regexp.Regexp
		full string
	}{
		{regexp.MustCompile(`\bSL\b`), "Sun Life"},
		{regexp.MustCompile(`\bPru\b`), "Prudential"},
	}
	andWord  = regexp.MustCompile(`\band\b`)
	corpWord = regexp.MustCompile(`\bCorp\b`)
)

// RootName reduces a display name to the short token used to find the same
// fund at another provider. The rules run in a fixed order:
//
//  1. expand "SL" and "Pru"
//  2. cut everything from "Index" onward
//  3. cut at the first "&", else at the word "and", else expand "Corp" to
//     "Corporate" when "Corporate" is not already there
//  4. cut everything from "Bond" onward
//
// "Axis Corp Bond Fund" becomes "Axis Corporate".
func RootName(name string) string {
	root := name
	for _, a := range abbreviations {
		root = a.re.ReplaceAllString(root, a.full)
	}

	if i := strings.Index(root, "Index"); i >= 0 {
		root = root[:i]
	}

	switch {
	case strings.Contains(root, "&"):
		root = root[:strings.Index(root, "&")]
	case andWord.MatchString(root):
		root = root[:andWord.FindStringIndex(root)[0]]
	case !strings.Contains(root, "Corporate"):
		root = corpWord.ReplaceAllString(root, "Corporate")
	}

	if i := strings.Index(root, "Bond"); i >= 0 {
		root = root[:i]
	}
	return strings.TrimSpace(root)
}
