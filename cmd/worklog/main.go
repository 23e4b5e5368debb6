package main

import (
	"os"

	"github.com/JonMunkholm/worklog/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
