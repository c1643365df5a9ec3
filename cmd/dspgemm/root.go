package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dspgemm",
		Short: "distributed sparse-DNN inference engine",
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newConvertCmd())
	return root
}
