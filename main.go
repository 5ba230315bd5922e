package main

import "github.com/moodtape/moodpipe/cmd"

func main() {
	cmd.Execute()
}
