// Copyright IBM Corp. 2023, 2025

package main

import "github.com/hashicorp/go-carve/cmd"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// main start go-carve cli `carve`
func main() {
	cmd.Run(version, commit, date)
}
