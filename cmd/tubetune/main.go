// Command tubetune downloads remote playlists into a local library and plays them from the terminal.
//
// Build:
//
//	go build -o build/tubetune ./cmd/tubetune
//
// Run:
//
//	./build/tubetune run
package main

import (
	"os"

	"github.com/spf13/afero"
)

func main() {
	if err := newRootCommand(afero.NewOsFs()).Execute(); err != nil {
		os.Exit(1)
	}
}
