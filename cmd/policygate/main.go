// Command policygate evaluates governance policies for code changes,
// deployments and agent actions.
package main

import "github.com/Policy-Gate/policygate/cmd/policygate/cmd"

func main() {
	cmd.Execute()
}
