package content

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sakif/js2py-docs/internal/snippet"
)

// DefaultTitle is shown on a playground without a title attribute.
const DefaultTitle = "Python Code Editor"

// PlaygroundBlock is one editor widget on a page, written in the page body
// as
//
//	<PythonEditor title="Lists" compare>
//	```python
//	...
//	```
//	```js
//	...
//	```
//	</PythonEditor>
type PlaygroundBlock struct {
	Index      int                `json:"index"`
	Title      string             `json:"title"`
	Compare    bool               `json:"compare"`
	ReadOnly   bool               `json:"readOnly"`
	ShowOutput bool               `json:"showOutput"`
	Fragments  []snippet.Fragment `json:"-"`
	Snippets   snippet.Set        `json:"snippets"`
}

// Section is either prose markdown or a playground.
type Section struct {
	Markdown   string           `json:"markdown,omitempty"`
	Playground *PlaygroundBlock `json:"playground,omitempty"`
}

var (
	openTag  = regexp.MustCompile(`^\s*<PythonEditor(\s[^>]*)?>\s*$`)
	closeTag = regexp.MustCompile(`^\s*</PythonEditor>\s*$`)
	attrRe   = regexp.MustCompile(`([A-Za-z][\w-]*)(?:=(?:"([^"]*)"|'([^']*)'|\{([^}]*)\}))?`)
)

// Split cuts a document body into sections in order. An unterminated
// playground runs to the end of the body.
func Split(body string) []Section {
	var (
		sections []Section
		prose    []string
		block    *PlaygroundBlock
		inner    []string
		index    int
	)

	flushProse := func() {
		text := strings.TrimSpace(strings.Join(prose, "\n"))
		if text != "" {
			sections = append(sections, Section{Markdown: text + "\n"})
		}
		prose = nil
	}
	flushBlock := func() {
		src := strings.Join(inner, "\n")
		block.Fragments = snippet.ParseMarkdown([]byte(src))
		block.Snippets = snippet.Extract(block.Fragments)
		sections = append(sections, Section{Playground: block})
		block, inner = nil, nil
	}

	for _, line := range strings.Split(body, "\n") {
		if block == nil {
			if m := openTag.FindStringSubmatch(line); m != nil {
				flushProse()
				block = parseAttrs(m[1])
				block.Index = index
				index++
				continue
			}
			prose = append(prose, line)
			continue
		}
		if closeTag.MatchString(line) {
			flushBlock()
			continue
		}
		inner = append(inner, line)
	}

	if block != nil {
		flushBlock()
	}
	flushProse()
	return sections
}

// Playgrounds returns only the playground blocks of body.
func Playgrounds(body string) []*PlaygroundBlock {
	var blocks []*PlaygroundBlock
	for _, s := range Split(body) {
		if s.Playground != nil {
			blocks = append(blocks, s.Playground)
		}
	}
	return blocks
}

func parseAttrs(raw string) *PlaygroundBlock {
	b := &PlaygroundBlock{Title: DefaultTitle, ShowOutput: true}

	for _, m := range attrRe.FindAllStringSubmatch(raw, -1) {
		name := m[1]
		hasValue := strings.Contains(m[0], "=")
		value := m[2] + m[3] + m[4]

		switch name {
		case "title":
			if v := strings.TrimSpace(value); v != "" {
				b.Title = v
			}
		case "compare":
			b.Compare = boolAttr(hasValue, value)
		case "readOnly", "readonly":
			b.ReadOnly = boolAttr(hasValue, value)
		case "showOutput":
			b.ShowOutput = boolAttr(hasValue, value)
		}
	}
	return b
}

// boolAttr follows JSX: a bare attribute is true.
func boolAttr(hasValue bool, value string) bool {
	if !hasValue {
		return true
	}
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && v
}
