// Command qa-runner runs YAML UI test suites against an Android device.
package main

import "github.com/devicelab-dev/qa-runner/pkg/cli"

func main() {
	cli.Execute()
}
