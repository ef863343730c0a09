package main

import (
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the xmlhub version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := writef(stdout, "xmlhub %s (%s)\n", version, runtime.Version()); err != nil {
				return failed(err)
			}
			return nil
		},
	}
}
