package main

import (
	"os"

	"github.com/modullar/violations-tracker-backend/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
