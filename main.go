package main

import "github.com/audiolibrelab/sleepstage/cmd"

func main() {
	cmd.Execute()
}
