package main

import "github.com/lynzrand/yuunagi/cmd/yuunagi/cmd"

func main() {
	cmd.Execute()
}
