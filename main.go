package main

import "github.com/maslowhq/maslow/cmd"

func main() {
	cmd.Execute()
}
