package main

import (
	"github.com/chaitanyamurarka/dtn-symbol-downloader/internal/cli"
)

func main() {
	cli.Execute()
}
