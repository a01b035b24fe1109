package main

import "github.com/vibast-solutions/ms-go-pix-access/cmd"

func main() {
	cmd.Execute()
}
