package main

import (
	"os"
)

func main() {
	if err := newRootCmd(defaultEnvironment()).Execute(); err != nil {
		os.Exit(1)
	}
}
