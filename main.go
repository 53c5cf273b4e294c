package main

import (
	"os"

	"github.com/sahilchouksey/icm-reconcile/app"
	applog "github.com/sahilchouksey/icm-reconcile/utils/logger"
)

func main() {
	// setup and run app
	if err := app.SetupAndRunServer(); err != nil {
		applog.Errorw("server exited", "error", err)
		os.Exit(1)
	}
}
