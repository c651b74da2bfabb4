package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/mobilecheck/internal/device"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the built-in device profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tDEVICE\tVIEWPORT\tSCALE\tTOUCH")
			for _, p := range device.All() {
				fmt.Fprintf(w, "%s\t%s\t%dx%d\t%g\t%v\n",
					p.Key, p.Info.Name, p.Info.Width, p.Info.Height, p.Info.Scale, p.Info.Touch)
			}
			return w.Flush()
		},
	}
}
