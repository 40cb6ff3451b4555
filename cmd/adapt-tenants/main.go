// Command adapt-tenants migrates every schema listed in a tenant file. It is
// meant to run as a startup step in front of the application.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
