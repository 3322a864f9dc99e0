// Package config holds the crawl configuration: defaults, the optional
// .friendcrawl YAML file, the API key environment variables, and
// validation.
package config
