package main

import "github.com/microblog-hq/microblog/cmd"

func main() {
	cmd.Execute()
}
