package responder

import (
	"fmt"

	"github.com/filmguide-ai/filmguide/internal/config"
	"github.com/filmguide-ai/filmguide/internal/dataset"
)

// defaultHeadRows limits the dataset excerpt in "head" mode when the
// config doesn't say otherwise.
const defaultHeadRows = 9

// RecommendProfile builds the movie-recommendation agent profile. The
// dataset mode decides how much of the catalog the prompt carries:
// "full" embeds every record, "head" only the first MaxRows, "compact"
// the terse one-line-per-film listing.
func RecommendProfile(cfg config.AgentConfig, securityKey string) Profile {
	mode := cfg.DatasetMode
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = defaultHeadRows
	}

	return Profile{
		Name:        "movie",
		Address:     cfg.Address,
		SecurityKey: securityKey,
		Prompt: func(c *dataset.Catalog, userText string) string {
			var excerpt string
			switch mode {
			case "compact":
				excerpt = c.Compact()
			case "head":
				excerpt = c.Head(maxRows)
			default:
				excerpt = c.Records()
			}
			return recommendPrompt(excerpt, userText)
		},
	}
}

// TrailerProfile builds the trailer-lookup agent profile. Its prompt
// always carries the compact listing plus the trailer-link index.
func TrailerProfile(cfg config.AgentConfig, securityKey string) Profile {
	return Profile{
		Name:        "trailer",
		Address:     cfg.Address,
		SecurityKey: securityKey,
		Prompt: func(c *dataset.Catalog, userText string) string {
			return trailerPrompt(c.VideoIndex(), c.Compact(), userText)
		},
	}
}

func recommendPrompt(excerpt, userText string) string {
	return fmt.Sprintf(`You are FilmGuide, a knowledgeable and friendly AI movie expert who loves cinema.
You chat naturally with users about movies, actors, genres, and recommendations.
You can suggest movies, describe plots, mention directors or actors, and give brief opinions.
Be concise but engaging. Answer like a human film buff, not a database.
Use the provided dataset if relevant, otherwise use your own film knowledge.

The user says:
"%s"

Use the following dataset to guide your answer when possible:
%s`, userText, excerpt)
}

func trailerPrompt(videoIndex, excerpt, userText string) string {
	return fmt.Sprintf(`You are TrailerGuide, a trailer finder assistant.

Your task:
- Find the trailer link for the movie the user mentions
- If no exact match, suggest 2-3 similar movies with their trailers
- Be concise and helpful

Trailers from the dataset: %s

The user says:
"%s"

Use the following dataset to guide your answer when possible:
%s`, videoIndex, userText, excerpt)
}
