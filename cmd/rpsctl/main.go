package main

import "github.com/park285/rps-season-bot/internal/cli"

func main() {
	cli.Execute()
}
