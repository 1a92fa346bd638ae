// Gantry is a single-pipeline CI runner.
//
// It executes the steps of a pipeline file in order, fails fast on the first
// broken step and always uploads the declared artifacts, so the logs are
// there when the build is not.
package main

import (
	"github.com/gantryci/gantry/cmd/gantry"
)

func main() {
	gantry.Execute()
}
