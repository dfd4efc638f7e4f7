package main

import "github.com/felixgeelhaar/fable/cmd/fable/cli"

func main() {
	cli.Execute()
}
