package main

import "github.com/tether-dev/tether/internal/cli"

func main() {
	cli.Execute()
}
