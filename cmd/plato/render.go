package main

import (
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"
)

func newRenderCmd() *cobra.Command {
	var flags sessionFlags
	var page int
	var out string

	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render one page to a PNG exactly as the panel would show it",
		Long: `Render runs the full pipeline for a single page: codec, layout,
rasterizer and compositor, including per-format dithering, and saves
the emulator panel contents as a PNG.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, fb, err := flags.open(args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := waitDisplay(sess); err != nil {
				return fmt.Errorf("rendering first page: %w", err)
			}
			if page != 0 {
				if err := sess.GoTo(page); err != nil {
					return err
				}
				if err := waitDisplay(sess); err != nil {
					return fmt.Errorf("rendering page %d: %w", page, err)
				}
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := png.Encode(f, fb.Snapshot()); err != nil {
				f.Close()
				return fmt.Errorf("encoding %s: %w", out, err)
			}
			if err := f.Close(); err != nil {
				return err
			}

			cur, count := sess.CurrentPage()
			fmt.Printf("wrote page %d of %d to %s\n", cur, count, out)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&page, "page", "p", 0, "zero-based page index")
	cmd.Flags().StringVarP(&out, "out", "o", "page.png", "output PNG path")
	return cmd
}
