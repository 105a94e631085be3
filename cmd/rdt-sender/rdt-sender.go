/*
rdt-sender transfers a file over UDP using Go-Back-N
*/
package main

import "github.com/skycoin/rdt/cmd/rdt-sender/commands"

func main() {
	commands.Execute()
}
