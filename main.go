package main

import "github.com/go-native/compose-deploy/cmd"

func main() {
	cmd.Execute()
}
