package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/Swind/go-confined-pump/cmd/kvpump/cmd"
)

func init() { _ = godotenv.Load() }

func main() {
	if err := cmd.App().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
