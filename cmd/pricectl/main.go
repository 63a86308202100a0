package main

import "deliverycost/internal/cli"

func main() {
	cli.Execute()
}
