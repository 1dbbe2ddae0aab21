package main

import (
	"fmt"
	"os"

	"gridsettle/services/settled"
)

func main() {
	if err := settled.Main(); err != nil {
		fmt.Fprintf(os.Stderr, "settled: %v\n", err)
		os.Exit(1)
	}
}
