/*
	Copyright 2023 Markus Papenbrock
*/

package main

import "github.com/mpapenbr/kartlog-telemetry-go/cmd"

func main() {
	cmd.Execute()
}
