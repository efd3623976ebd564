package main

import (
	"euserv-renewer/cmd/renewer/commands"
	"euserv-renewer/internal/components/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
