package main

import (
	"github.com/luma/ninep/cmd"
)

func main() {
	cmd.Execute()
}
