// Command ac3bridge is the daemon entrypoint (spec.md §1, §6).
package main

import (
	"github.com/drgolem/ac3bridge/cmd"
)

func main() {
	cmd.Execute()
}
