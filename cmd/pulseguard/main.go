// pulseguard watches a heart-rate sensor and runs AI-mediated
// interventions when the rate leaves the normal range.
package main

import "github.com/ppiankov/pulseguard/internal/cli"

func main() {
	cli.Execute()
}
