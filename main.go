package main

import "netcraft/internal/cli"

func main() {
	cli.Execute()
}
