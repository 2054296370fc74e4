package main

import "github.com/jmcleod/docsession/cmd/docsession/cmd"

func main() {
	cmd.Execute()
}
