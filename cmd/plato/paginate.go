package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPaginateCmd() *cobra.Command {
	var flags sessionFlags

	cmd := &cobra.Command{
		Use:   "paginate FILE",
		Short: "Count the pages a document produces under a layout",
		Long: `Paginate opens the document for the given viewport and typography and
reports the resulting page count. For reflowable formats this is the
number the reader would show; for fixed formats it is the physical
page count.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, err := flags.open(args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			_, count := sess.CurrentPage()
			p := sess.Layout()
			fmt.Printf("%d pages at %dx%d, %.0fpx %s\n",
				count, p.Width, p.Height, p.FontSize, p.FontFamily)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
