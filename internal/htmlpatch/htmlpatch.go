// Package htmlpatch links a project's stylesheets and scripts into its HTML
// documents when the generated markup forgot to reference them.
package htmlpatch

import (
	"regexp"
	"strings"
)

var (
	headCloseRe = regexp.MustCompile(`(?i)</head\s*>`)
	headOpenRe  = regexp.MustCompile(`(?i)<head(?:\s[^>]*)?>`)
	htmlOpenRe  = regexp.MustCompile(`(?i)<html(?:\s[^>]*)?>`)
	bodyCloseRe = regexp.MustCompile(`(?i)</body\s*>`)
	htmlCloseRe = regexp.MustCompile(`(?i)</html\s*>`)
)

// IsHTML reports whether path names an HTML document.
func IsHTML(path string) bool { return strings.HasSuffix(strings.ToLower(path), ".html") }

// Patch returns doc with a stylesheet link for every .css path and a script
// tag for every .js path in siblings that doc does not mention yet.
// Documents without an <html tag are returned unchanged. Patch is idempotent.
//
// Stylesheets go before </head>, else right after <head>, else into a new
// head block after <html>. Scripts go before </body>, else before </html>,
// else at the end of the document.
func Patch(doc string, siblings []string) string {
	if !strings.Contains(strings.ToLower(doc), "<html") {
		return doc
	}
	for _, p := range siblings {
		if !strings.HasSuffix(p, ".css") || strings.Contains(doc, p) {
			continue
		}
		doc = linkStylesheet(doc, `<link rel="stylesheet" href="`+p+`">`)
	}
	for _, p := range siblings {
		if !strings.HasSuffix(p, ".js") || strings.Contains(doc, p) {
			continue
		}
		doc = addScript(doc, `<script src="`+p+`"></script>`)
	}
	return doc
}

func linkStylesheet(doc, tag string) string {
	if loc := headCloseRe.FindStringIndex(doc); loc != nil {
		return doc[:loc[0]] + "    " + tag + "\n" + doc[loc[0]:]
	}
	if loc := headOpenRe.FindStringIndex(doc); loc != nil {
		return doc[:loc[1]] + "\n    " + tag + doc[loc[1]:]
	}
	if loc := htmlOpenRe.FindStringIndex(doc); loc != nil {
		return doc[:loc[1]] + "\n<head>\n    " + tag + "\n</head>" + doc[loc[1]:]
	}
	return doc
}

func addScript(doc, tag string) string {
	if loc := bodyCloseRe.FindStringIndex(doc); loc != nil {
		return doc[:loc[0]] + "    " + tag + "\n" + doc[loc[0]:]
	}
	if loc := htmlCloseRe.FindStringIndex(doc); loc != nil {
		return doc[:loc[0]] + tag + "\n" + doc[loc[0]:]
	}
	return doc + "\n" + tag
}
