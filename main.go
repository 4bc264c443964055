package main

import "github.com/AdguardTeam/HostlistCompiler/internal/cmd"

func main() {
	cmd.Main()
}
