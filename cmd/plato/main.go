// Command plato inspects and renders documents through the reading
// core: format detection, metadata, outlines, layout-dependent page
// counts and page images rendered exactly as they would appear on the
// device panel.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/OGKevin/plato"
	"github.com/OGKevin/plato/framebuffer"
	"github.com/OGKevin/plato/settings"

	_ "github.com/OGKevin/plato/document/epubdoc"
	_ "github.com/OGKevin/plato/document/imagedoc"
	_ "github.com/OGKevin/plato/document/pdfdoc"
	_ "github.com/OGKevin/plato/document/txtdoc"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "plato",
		Short:   "Inspect and render documents with the plato reading core",
		Long: `Plato opens PDF, EPUB, TXT, CBZ and image files the way the e-ink
reader does: the same codecs, the same pagination and the same
rendering pipeline. Use it to check what a document will look like on
the device without a device.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newInfoCmd())
	root.AddCommand(newTocCmd())
	root.AddCommand(newPaginateCmd())
	root.AddCommand(newRenderCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "plato:", err)
		os.Exit(1)
	}
}

// sessionFlags are shared by the commands that run a full reading
// session rather than just opening the codec.
type sessionFlags struct {
	width        int
	height       int
	dpi          float64
	settingsPath string
	verbose      bool
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.width, "width", plato.DefaultWidth, "viewport width in pixels")
	cmd.Flags().IntVar(&f.height, "height", plato.DefaultHeight, "viewport height in pixels")
	cmd.Flags().Float64Var(&f.dpi, "dpi", plato.DefaultDPI, "display density used for point and millimeter settings")
	cmd.Flags().StringVar(&f.settingsPath, "settings", "", "settings file (TOML)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log rendering detail to stderr")
}

// open starts a session on an emulator panel of the flag dimensions
// and returns the panel so callers can read composed pixels back.
func (f *sessionFlags) open(path string) (*plato.Session, *framebuffer.Memory, error) {
	opts := []plato.Option{plato.WithDPI(f.dpi)}
	if f.settingsPath != "" {
		st, err := settings.Load(f.settingsPath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, plato.WithSettings(st))
	}
	if f.verbose {
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		opts = append(opts, plato.WithLogger(slog.New(h)))
	}

	fb := framebuffer.NewMemory(f.width, f.height)
	opts = append(opts, plato.WithFramebuffer(fb))

	sess, err := plato.Open(path, opts...)
	if err != nil {
		return nil, nil, err
	}
	return sess, fb, nil
}

// waitDisplay blocks until the next frame reaches the panel. With
// sequential navigation every completed page turn produces exactly one
// event; a page whose render fails produces none, hence the timeout.
func waitDisplay(sess *plato.Session) error {
	select {
	case ev, ok := <-sess.Events():
		if !ok {
			return errors.New("session closed before the page was displayed")
		}
		return ev.Err
	case <-time.After(60 * time.Second):
		return errors.New("timed out waiting for the page to render")
	}
}
