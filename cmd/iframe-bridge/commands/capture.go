package commands

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grez-lucas/iframe-bridge/internal/browser"
	"github.com/grez-lucas/iframe-bridge/internal/redact"
)

// capture <url>: save the page with shadow roots and iframes inlined, ready
// to be used as a --fixture.
func captureCmd() *cobra.Command {
	var (
		out        string
		screenshot bool
		manual     bool
		raw        bool
	)

	cmd := &cobra.Command{
		Use:   "capture <url>",
		Short: "Save a page, iframes inlined, as a redacted HTML snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n := 0
			return withPage(ctx, args[0], manual, func(s *browser.Session) error {
				path := out
				if manual && n > 0 {
					ext := filepath.Ext(out)
					path = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(out, ext), n, ext)
				}
				n++

				if err := browser.WaitForIFrames(s.Page); err != nil {
					log.Warn("iframes did not settle", zap.Error(err))
				}
				time.Sleep(time.Second)

				// before flattening, which changes the rendering
				if screenshot {
					shot := strings.TrimSuffix(path, filepath.Ext(path)) + ".png"
					if buf, err := s.Page.Screenshot(false, nil); err != nil {
						log.Warn("screenshot failed", zap.Error(err))
					} else if err := os.WriteFile(shot, buf, 0o644); err != nil {
						log.Warn("save screenshot", zap.Error(err))
					}
				}

				snap, err := browser.FlattenShadowDOM(s.Page)
				if err != nil {
					return err
				}
				html := snap.HTML
				if !raw {
					if html, err = redact.HTML(html); err != nil {
						return err
					}
				}
				if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
					return fmt.Errorf("write snapshot: %w", err)
				}

				log.Info("captured",
					zap.String("path", path),
					zap.Int("iframes", snap.IframeCount),
					zap.Int("shadow_roots", snap.ShadowCount))
				if manual {
					// flattening rewrote the live DOM
					if err := s.Page.Reload(); err != nil {
						log.Warn("reload failed", zap.Error(err))
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "snapshot.html", "snapshot file; --manual numbers later captures")
	cmd.Flags().BoolVar(&screenshot, "screenshot", false, "also save a PNG next to the snapshot")
	cmd.Flags().BoolVar(&manual, "manual", false, "open a visible browser and capture each time ENTER is pressed")
	cmd.Flags().BoolVar(&raw, "no-redact", false, "keep input values and tokens as captured")
	return cmd
}
