// Package svg strips active content from uploaded SVG documents.
package svg

import (
	"bytes"
	"errors"
	"regexp"
)

var ErrNotSVG = errors.New("not an svg document")

var (
	scriptTagPattern    = regexp.MustCompile(`(?is)<\s*script[\s>].*?<\s*/\s*script\s*>`)
	selfClosedScript    = regexp.MustCompile(`(?is)<\s*script[^>]*/\s*>`)
	foreignObjectTag    = regexp.MustCompile(`(?is)<\s*foreignObject[\s>].*?<\s*/\s*foreignObject\s*>`)
	eventAttrPattern    = regexp.MustCompile(`(?is)\son[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	javascriptHrefAttrs = regexp.MustCompile(`(?is)\s(?:xlink:)?href\s*=\s*("\s*javascript:[^"]*"|'\s*javascript:[^']*')`)
)

// Sanitize removes script elements, foreignObject subtrees, on* event
// handlers and javascript: links.
func Sanitize(input []byte) ([]byte, error) {
	if !bytes.Contains(bytes.ToLower(input), []byte("<svg")) {
		return nil, ErrNotSVG
	}

	clean := scriptTagPattern.ReplaceAll(input, nil)
	clean = selfClosedScript.ReplaceAll(clean, nil)
	clean = foreignObjectTag.ReplaceAll(clean, nil)
	clean = eventAttrPattern.ReplaceAll(clean, nil)
	clean = javascriptHrefAttrs.ReplaceAll(clean, nil)

	return clean, nil
}
