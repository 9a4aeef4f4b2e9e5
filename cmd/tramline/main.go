// Package main provides the tramline command line tool. It plans trips and
// inspects the stop catalog without running the API server, and mints
// operator tokens for the admin endpoints.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
