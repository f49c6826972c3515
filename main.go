package main

import (
	"errors"
	"os"

	"github.com/brendan-ward/rastertiler/cmd"
	"github.com/brendan-ward/rastertiler/pipeline"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, pipeline.ErrInterrupted) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
