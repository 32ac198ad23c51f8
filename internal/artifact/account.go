package artifact

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DisplayName turns an account slug into the name agents expect on their
// command line: dashes become spaces and each word is title-cased.
func DisplayName(slug string) string {
	words := strings.ReplaceAll(slug, "-", " ")
	return cases.Title(language.English).String(words)
}
