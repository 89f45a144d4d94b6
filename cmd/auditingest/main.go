package main

import (
	"os"

	auditcmd "github.com/telekom/m365-audit-ingest/pkg/cmd"
)

func run(args []string) int {
	root := auditcmd.NewRootCommand(auditcmd.DefaultConfig())
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:]))
}
