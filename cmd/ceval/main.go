// Command ceval runs chess engine analysis from the terminal.
//
// Usage:
//
//	ceval analyze [--fen FEN] [--moves "e2e4 e7e5"] [--variant atomic]
//	ceval interactive [--fen FEN]
//	ceval cache ls
//	ceval cache rm <version>
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	a := &app{}
	err := newRootCommand(a).Execute()
	if a.logger != nil {
		a.close(context.Background())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
