package main

import "github.com/vietddude/quotation/internal/cli"

func main() {
	cli.Execute()
}
