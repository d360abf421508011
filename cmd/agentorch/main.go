// Package main provides the entry point for the agentorch CLI.
package main

import "agentorch/internal/cli"

func main() {
	cli.Execute()
}
