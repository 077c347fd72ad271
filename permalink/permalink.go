// Package permalink assigns permanent URL identifiers to posts and derives
// the cosmetic slugs that accompany them. The identifier is authoritative for
// lookup; the slug is recomputed from the current title and self-heals via
// redirect when a stored link goes stale.
package permalink

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const idLength = 12

// maxRetries bounds the suffix loop. The 48-bit candidate space makes
// collisions astronomically unlikely; hitting this cap means the exists
// callback is broken, not that we ran out of identifiers.
const maxRetries = 64

var ErrRetriesExhausted = errors.New("permalink: identifier collision retries exhausted")

// slugDenylist holds every character replaced with a hyphen when deriving a
// slug from a title.
var slugDenylist = map[rune]bool{
	' ': true, '<': true, '>': true, '#': true, '%': true,
	'{': true, '}': true, '|': true, '\\': true, '^': true,
	'~': true, '[': true, ']': true, '`': true, '"': true,
	'\'': true, ':': true, ';': true, '/': true, '?': true,
	'=': true, '&': true, '@': true, '+': true, '.': true, ',': true,
}

// NewID produces a unique URL identifier: the last 12 characters of a
// UUID-v4 string, suffixed with an increasing counter while the exists
// callback reports a collision.
func NewID(exists func(string) bool) (string, error) {
	u := uuid.NewString()
	id := u[len(u)-idLength:]

	for n := 1; exists(id); n++ {
		if n > maxRetries {
			return "", ErrRetriesExhausted
		}
		id = fmt.Sprintf("%s%d", id, n)
	}

	return id, nil
}

// Slug derives the URL slug from a post title: denylisted characters become
// hyphens, empty segments are dropped, and the result is lowercased.
func Slug(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		if slugDenylist[r] {
			return '-'
		}
		return r
	}, title)

	var words []string
	for _, word := range strings.Split(cleaned, "-") {
		if word != "" {
			words = append(words, word)
		}
	}

	return strings.ToLower(strings.Join(words, "-"))
}

// Canonical returns the slug-identifier path segment for a post.
func Canonical(title, urlID string) string {
	return Slug(title) + "-" + urlID
}

// Split separates a request path segment into its slug and identifier parts.
// The identifier never contains a hyphen, so everything after the last hyphen
// is the identifier; a segment without hyphens is a bare identifier.
func Split(ref string) (slug, urlID string) {
	idx := strings.LastIndex(ref, "-")
	if idx < 0 {
		return "", ref
	}
	return ref[:idx], ref[idx+1:]
}
