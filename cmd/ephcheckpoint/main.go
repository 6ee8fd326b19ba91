package main

import (
	"github.com/Azure/azure-event-hubs-processor-go/cmd/ephcheckpoint/cmd"
)

func main() {
	cmd.Execute()
}
