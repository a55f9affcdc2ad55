// Package defaults provides embedded copies of the starter
// configuration and movie dataset for the filmguide init subcommand.
package defaults

import _ "embed"

//go:embed config.example.yaml
var ConfigYAML []byte

//go:embed movies.example.csv
var MoviesCSV []byte
