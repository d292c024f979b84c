// File: main.go
package main

import (
	"github.com/xkilldash9x/lancet/cmd"
)

func main() {
	cmd.Execute()
}
