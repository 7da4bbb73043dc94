package main

import "github.com/AngeloRai/genmeter/cmd"

func main() {
	cmd.Execute()
}
