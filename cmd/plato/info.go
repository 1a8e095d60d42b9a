package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OGKevin/plato/document"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Show document format, metadata and size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := document.Open(args[0])
			if err != nil {
				return err
			}
			defer doc.Close()

			f := doc.Format()
			fmt.Printf("format:      %s (%s)\n", f, f.Kind())

			meta := doc.Metadata()
			if meta.Title != "" {
				fmt.Printf("title:       %s\n", meta.Title)
			}
			if meta.Author != "" {
				fmt.Printf("author:      %s\n", meta.Author)
			}
			if meta.Language != "" {
				fmt.Printf("language:    %s\n", meta.Language)
			}

			n, err := doc.PageCount()
			if err != nil {
				return err
			}
			if f.Kind() == document.Reflowable {
				// Logical pages depend on the layout; see paginate.
				fmt.Printf("sections:    %d\n", n)
			} else {
				fmt.Printf("pages:       %d\n", n)
			}
			fmt.Printf("fingerprint: %016x\n", doc.Fingerprint())
			return nil
		},
	}
}
