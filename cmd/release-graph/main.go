// Package main provides the entry point for the release-graph CLI.
package main

import "yqhp/release-graph/cmd"

func main() {
	cmd.Execute()
}
