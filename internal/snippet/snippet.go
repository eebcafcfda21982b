// Package snippet picks the Python and JavaScript sources out of a
// playground's code fragments.
package snippet

import (
	"strings"

	"github.com/sakif/js2py-docs/internal/model"
)

// Fragment is one tagged code block, in document order.
type Fragment struct {
	Lang string `json:"lang"`
	Text string `json:"text"`
}

// Set holds the extracted sources. A language that had no fragment is
// empty.
type Set struct {
	Python     string `json:"python"`
	JavaScript string `json:"javascript"`
}

// Source returns the text for lang.
func (s Set) Source(lang model.Language) string {
	switch lang {
	case model.Python:
		return s.Python
	case model.JavaScript:
		return s.JavaScript
	default:
		return ""
	}
}

// Extract returns the first python fragment and the first javascript (or js)
// fragment. Later fragments of an already seen language and fragments in any
// other language are ignored.
func Extract(fragments []Fragment) Set {
	var (
		set                Set
		havePython, haveJS bool
	)
	for _, f := range fragments {
		switch NormalizeTag(f.Lang) {
		case "python":
			if !havePython {
				set.Python = f.Text
				havePython = true
			}
		case "javascript", "js":
			if !haveJS {
				set.JavaScript = f.Text
				haveJS = true
			}
		}
	}
	return set
}

// NormalizeTag lower-cases a language tag and strips the "language-" prefix
// markup renderers put on code elements.
func NormalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return strings.TrimPrefix(tag, "language-")
}
