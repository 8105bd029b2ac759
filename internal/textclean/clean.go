// Package textclean normalizes raw post text before enrichment.
package textclean

import (
	"regexp"
	"strings"
	"unicode"
)

// Default token bounds for an accepted post.
const (
	DefaultMinTokens = 3
	DefaultMaxTokens = 50
)

var (
	urlPattern     = regexp.MustCompile(`https?\S+|www\S+`)
	mentionPattern = regexp.MustCompile(`@\S+`)
	hashtagPattern = regexp.MustCompile(`#\S+`)
)

// Options configures a Cleaner. Zero values select the defaults.
type Options struct {
	MinTokens      int
	MaxTokens      int
	ExtraStopwords []string
	// KeepHashtags keeps the hashtag word (without '#') instead of dropping it.
	KeepHashtags bool
}

// Cleaner applies the cleaning policy. It is immutable after construction
// and safe for concurrent use.
type Cleaner struct {
	minTokens    int
	maxTokens    int
	keepHashtags bool
	stopwords    map[string]struct{}
}

// New builds a Cleaner from opts.
func New(opts Options) *Cleaner {
	c := &Cleaner{
		minTokens:    opts.MinTokens,
		maxTokens:    opts.MaxTokens,
		keepHashtags: opts.KeepHashtags,
		stopwords:    DefaultStopwords(),
	}
	if c.minTokens <= 0 {
		c.minTokens = DefaultMinTokens
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	for _, w := range opts.ExtraStopwords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			c.stopwords[w] = struct{}{}
		}
	}
	return c
}

// Clean returns the normalized text and true, or "" and false when the post
// is rejected because too few or too many tokens survive.
func (c *Cleaner) Clean(text string) (string, bool) {
	text = strings.ToLower(text)
	text = urlPattern.ReplaceAllString(text, "")
	text = mentionPattern.ReplaceAllString(text, "")
	if !c.keepHashtags {
		text = hashtagPattern.ReplaceAllString(text, "")
	}

	text = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case strings.ContainsRune("áéíóúñü", r):
			return r
		case unicode.IsSpace(r):
			return ' '
		}
		return -1
	}, text)

	words := strings.Fields(text)
	kept := words[:0]
	for _, w := range words {
		if _, stop := c.stopwords[w]; !stop {
			kept = append(kept, w)
		}
	}
	if len(kept) < c.minTokens || len(kept) > c.maxTokens {
		return "", false
	}
	return strings.Join(kept, " "), true
}

// IsStopword reports whether w is in the cleaner's stopword set.
func (c *Cleaner) IsStopword(w string) bool {
	_, ok := c.stopwords[strings.ToLower(w)]
	return ok
}
