package main

import "github.com/frahmantamala/disbursement/cmd"

func main() {
	cmd.Execute()
}
