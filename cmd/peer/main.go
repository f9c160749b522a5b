package main

import "github.com/dkeye/Broadcast/internal/cli"

func main() {
	cli.Execute()
}
