// Command riskdesk runs the risk monitor, the trade approval queue and their HTTP API.
//
// Usage:
//
//	riskdesk setup                   interactive config wizard
//	riskdesk serve -c riskdesk.yaml  monitor + approval API
//	riskdesk report -c riskdesk.yaml one-shot risk report
//	riskdesk trades list             pending trades
package main

import (
	"os"

	"github.com/vadiminshakov/riskdesk/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
