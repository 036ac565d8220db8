// Command posixsh is the entrypoint: it constructs a shell.Shell with
// default configuration and runs the session, grounded on
// Kristina-Pianykh-go-shell/cmd/myshell/main.go's thin main that wires
// raw-mode lifecycle and loops until exit.
package main

import (
	"fmt"
	"os"

	"posixsh/internal/shell"
)

func main() {
	s, err := shell.New(shell.DefaultConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, "posixsh:", err)
		os.Exit(1)
	}
	os.Exit(s.Run())
}
