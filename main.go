package main

import "github.com/AIGelman23/Connectify-sub001/cmd"

func main() {
	cmd.Execute()
}
