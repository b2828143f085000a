package main

import (
	"github.com/sirupsen/logrus"

	"github.com/peerdrop/peerdrop/cmd"
	"github.com/peerdrop/peerdrop/internal/logging"
)

func main() {
	// Warnings only by default so log lines do not tear the live view.
	logging.Init(logrus.WarnLevel)
	cmd.Execute()
}
