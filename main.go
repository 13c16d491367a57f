package main

import (
	"github/lumenwallet/tx-engine/cmd"
)

func main() {
	cmd.Execute()
}
