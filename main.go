package main

import "github.com/xiaoyuanzhu-com/buildchat/cmd"

func main() {
	cmd.Execute()
}
