// Command vmsa translates the accesses of a scenario and reports the
// translation traces it records.
package main

import "github.com/sarchlab/vmsa/cmd/vmsa/cmd"

func main() {
	cmd.Execute()
}
