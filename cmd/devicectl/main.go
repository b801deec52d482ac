// Command devicectl is an operator CLI for the device fleet control plane:
// dispatch commands, manage OTA rollouts, and trigger scheduler jobs against
// a running server's admin HTTP API.
package main

import "github.com/fleetops/devicecontrol/cmd/devicectl/cmd"

func main() {
	cmd.Execute()
}
