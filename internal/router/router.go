// Package router maps free-text intent to responder agent addresses.
package router

import "strings"

// DefaultTrailerKeywords trigger routing to the trailer agent.
var DefaultTrailerKeywords = []string{"trailer", "watch", "show me", "clip", "video"}

// Router picks the destination address for a user message. It is a
// pure keyword matcher: any trailer keyword in the text routes to the
// trailer agent, everything else goes to the movie recommender. It
// always returns a valid address.
type Router struct {
	movieAddr   string
	trailerAddr string
	keywords    []string
}

// New creates a Router. An empty keyword list means
// [DefaultTrailerKeywords]. Matching is case-insensitive substring
// matching on the raw (non-augmented) user text.
func New(movieAddr, trailerAddr string, keywords []string) *Router {
	if len(keywords) == 0 {
		keywords = DefaultTrailerKeywords
	}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &Router{
		movieAddr:   movieAddr,
		trailerAddr: trailerAddr,
		keywords:    lowered,
	}
}

// Destination returns the fabric address responsible for text.
func (r *Router) Destination(text string) string {
	lowered := strings.ToLower(text)
	for _, k := range r.keywords {
		if strings.Contains(lowered, k) {
			return r.trailerAddr
		}
	}
	return r.movieAddr
}
