package main

import "github.com/cmlabs-hris/hris-leave-go/cmd/leavectl/cli"

func main() {
	cli.Execute()
}
