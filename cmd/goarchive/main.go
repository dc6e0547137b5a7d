// Command goarchive runs the age-based archival pipeline: run, estimate,
// settings, plan, and validate.
package main

import "github.com/dbsmedya/goarchive/cmd/goarchive/cmd"

func main() {
	cmd.Execute()
}
