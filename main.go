// The main package for the ragline executable.
package main

import (
	"github.com/teamindigo/ragline/cmd"
)

func main() {
	cmd.Execute()
}
