// Package parser extracts internal references and word sets from zettel
// content.
package parser

import (
	"regexp"
	"strings"
)

// referenceRe matches [[id]] tokens. Anything other than a bare alphanumeric
// id between the brackets is plain text.
var referenceRe = regexp.MustCompile(`\[\[([A-Za-z0-9]+)\]\]`)

// References returns the distinct ids referenced by [[id]] tokens, in order
// of first appearance.
func References(content string) []string {
	matches := referenceRe.FindAllStringSubmatch(content, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		id := m[1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Replace rewrites every [[id]] token with fn(id).
func Replace(content string, fn func(id string) string) string {
	return referenceRe.ReplaceAllStringFunc(content, func(tok string) string {
		return fn(tok[2 : len(tok)-2])
	})
}

// WordSet splits content on whitespace and returns the distinct lower-cased
// tokens. There is no stemming, stopword removal or punctuation stripping:
// "graph," and "graph" are different words.
func WordSet(content string) map[string]struct{} {
	fields := strings.Fields(content)
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[strings.ToLower(f)] = struct{}{}
	}
	return out
}
