package main

import "os"

// Command octopus-consumption-exporter keeps a time series store in sync with
// the half-hourly meter readings published by the Octopus Energy API.
//
// Every run resumes each series from its newest stored point:
//   - electricity import consumption
//   - electricity export, when an export meter is configured
//   - gas consumption, scaled by the volume correction factor
//
// Usage:
//
//	octopus-consumption-exporter [run|once] [flags]
//
// The flags are:
//
//	--config string
//	      path to config file (default "config.yaml" when present)
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
