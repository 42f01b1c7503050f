// Command hmacsign signs and checks requests for the HMAC gateway.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
