package main

import "github.com/waveline-app/waveline/internal/cli"

func main() {
	cli.Execute()
}
