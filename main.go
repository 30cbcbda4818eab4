package main

import "contest-vote-backend/cmd"

func main() {
	cmd.Run()
}
