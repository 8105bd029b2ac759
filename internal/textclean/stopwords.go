package textclean

import (
	_ "embed"
	"strings"
)

//go:embed stopwords_es.txt
var spanishStopwords string

// customStopwords are high-frequency tokens in political posts that carry no
// sentiment signal on their own.
var customStopwords = []string{
	"q", "ver", "tan", "va", "ser", "cosa", "tra", "sido", "vez",
	"hoy", "ahora", "año", "día", "nuevo", "gente",
	"así", "solo", "parte", "mientras", "puede", "cómo", "hizo",
}

// DefaultStopwords returns a fresh copy of the Spanish list plus the custom
// additions. Callers own the returned set.
func DefaultStopwords() map[string]struct{} {
	set := make(map[string]struct{}, 400)
	for _, w := range strings.Fields(spanishStopwords) {
		set[w] = struct{}{}
	}
	for _, w := range customStopwords {
		set[w] = struct{}{}
	}
	return set
}
