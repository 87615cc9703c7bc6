package main

import "github.com/LENAX/dbf-pipeline/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
