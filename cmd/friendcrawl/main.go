// Package main provides the entry point for the friendcrawl CLI.
//
// friendcrawl walks the public friends graph of the Steam community,
// starting from a seed account, and records which public profiles own a
// target app (Team Fortress 2 by default).
//
// Usage:
//
//	friendcrawl crawl --api-key KEY
//	friendcrawl report --markdown
//	friendcrawl export --owners owners.txt
//
// See --help for all available options.
package main

func main() {
	Execute()
}
