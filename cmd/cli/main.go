package main

import (
	"context"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	os.Exit(submain(context.Background(), os.Args[1:]))
}
