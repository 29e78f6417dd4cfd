package main

import "github.com/ValentinKolb/dAudit/cmd"

func main() {
	cmd.Execute()
}
