package main

import "github.com/hyperdag-network/repid/internal/cli"

func main() {
	cli.Execute()
}
