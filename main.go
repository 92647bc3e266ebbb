package main

import "versionvibe/cmd"

func main() {
	cmd.Execute()
}
