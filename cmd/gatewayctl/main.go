// Command gatewayctl is an administrative CLI for a running gateway
// process, talking to its HTTP facade.
package main

import (
	"fmt"
	"os"

	"github.com/opensandbox/msbgateway/cmd/gatewayctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
