package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OGKevin/plato/document"
)

func newTocCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toc FILE",
		Short: "Print the table of contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := document.Open(args[0])
			if err != nil {
				return err
			}
			defer doc.Close()

			toc, err := doc.Outline()
			if err != nil {
				return err
			}
			if len(toc) == 0 {
				fmt.Println("no table of contents")
				return nil
			}
			printEntries(toc, 0)
			return nil
		},
	}
}

func printEntries(entries []document.TocEntry, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, e := range entries {
		fmt.Printf("%s%s  (%s)\n", indent, e.Title, e.Target)
		printEntries(e.Children, depth+1)
	}
}
