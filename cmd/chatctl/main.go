package main

import "github.com/mcoot/globalchat/internal/cli"

func main() {
	cli.Execute()
}
