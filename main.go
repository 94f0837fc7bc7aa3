package main

import (
	"os"

	"oauth-bridge/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		os.Exit(1)
	}
}
