package main

import "CaseForAI/backend/go/cmd/casectl/cmd"

func main() {
	cmd.Execute()
}
