package main

import (
	"log"

	"kuizu-session-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatal(err)
	}
}
