package main

import "github.com/EdvinCodes/offgrid/cmd"

func main() {
	cmd.Execute()
}
