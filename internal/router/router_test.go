package router

import "testing"

func TestDestination(t *testing.T) {
	r := New("movie-recommender", "trailer-finder", nil)

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "trailer keyword", text: "show me the trailer for Inside Job", want: "trailer-finder"},
		{name: "uppercase keyword", text: "I want the TRAILER", want: "trailer-finder"},
		{name: "watch keyword", text: "what should I watch tonight", want: "trailer-finder"},
		{name: "clip keyword", text: "got a clip of that heist scene?", want: "trailer-finder"},
		{name: "video keyword", text: "any video about bitcoin", want: "trailer-finder"},
		{name: "show me phrase", text: "Show me something scary", want: "trailer-finder"},
		{name: "keyword inside word", text: "rewatching old favorites", want: "trailer-finder"},
		{name: "no keyword", text: "recommend me a thriller about crypto", want: "movie-recommender"},
		{name: "empty text", text: "", want: "movie-recommender"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Destination(tt.text); got != tt.want {
				t.Errorf("Destination(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestDestination_CustomKeywords(t *testing.T) {
	r := New("movie-recommender", "trailer-finder", []string{"Teaser"})

	if got := r.Destination("play the teaser"); got != "trailer-finder" {
		t.Errorf("custom keyword not matched case-insensitively, got %q", got)
	}
	if got := r.Destination("show me the trailer"); got != "movie-recommender" {
		t.Errorf("default keywords should be replaced, got %q", got)
	}
}
