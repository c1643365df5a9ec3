// Command dspgemm runs the distributed sparse-DNN inference engine or
// converts triple files between text and binary formats.
package main

import (
	"errors"
	"os"

	"github.com/dspgemm/dspgemm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, dspgemm.ErrChallengeFailed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
