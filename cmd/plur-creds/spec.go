package main

import (
	"github.com/spf13/cobra"

	"github.com/zx06/plurcast/internal/app"
	"github.com/zx06/plurcast/internal/output"
)

// NewSpecCommand creates the spec command
func NewSpecCommand(a *app.App, w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "spec",
		Short: "Export the machine-readable command spec",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(GlobalConfig.FormatStr)
			if err != nil {
				return err
			}
			return w.WriteOK(format, a.BuildSpec())
		},
	}
}
