package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grez-lucas/iframe-bridge/internal/alert"
	"github.com/grez-lucas/iframe-bridge/internal/browser"
	"github.com/grez-lucas/iframe-bridge/internal/dom/htmldom"
	"github.com/grez-lucas/iframe-bridge/internal/flow"
	"github.com/grez-lucas/iframe-bridge/internal/iframe"
	"github.com/grez-lucas/iframe-bridge/internal/notify"
)

// run <flow.yaml>: execute a flow against --url or --fixture.
func runCmd() *cobra.Command {
	var (
		pageURL    string
		fixture    string
		out        string
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "run <flow.yaml>",
		Short: "Run a flow against a live page or a captured snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (pageURL == "") == (fixture == "") {
				return errors.New("exactly one of --url or --fixture is required")
			}
			if out != "" && fixture == "" {
				return errors.New("--out needs --fixture")
			}

			f, err := flow.Load(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n := notify.New(cfg.Notify.WebhookURL, notify.WithLogger(log))
			if w, ok := n.(*notify.Webhook); ok {
				// deliver pending notifications before exiting
				defer w.Wait()
			}
			bridgeOpts := append(cfg.BridgeOptions(), iframe.WithLogger(log))

			var rep *flow.Report
			if fixture != "" {
				rep, err = runFixture(ctx, f, fixture, out, n, bridgeOpts)
			} else {
				rep, err = runLive(ctx, f, pageURL, n, bridgeOpts)
			}

			if rep != nil {
				fmt.Fprint(cmd.OutOrStdout(), rep.Summary())
				if reportPath != "" {
					if werr := writeReport(reportPath, rep); werr != nil {
						log.Error("write report", zap.Error(werr))
					}
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&pageURL, "url", "", "page to open in the browser")
	cmd.Flags().StringVar(&fixture, "fixture", "", "captured HTML snapshot to run against instead of a browser")
	cmd.Flags().StringVar(&out, "out", "", "write the snapshot after the run to this file (with --fixture)")
	cmd.Flags().StringVar(&reportPath, "report", "", "write the run report as JSON to this file")
	return cmd
}

func runFixture(ctx context.Context, f *flow.Flow, path, out string, n notify.Notifier, opts []iframe.Option) (*flow.Report, error) {
	snap, err := htmldom.Load(path)
	if err != nil {
		return nil, err
	}

	r := flow.NewRunner(iframe.NewBridge(snap.Document(), opts...),
		flow.WithNotifier(n),
		flow.WithLogger(log),
	)
	rep, runErr := r.Run(ctx, f)

	for _, e := range snap.Events() {
		log.Debug("applied", zap.Stringer("event", e))
	}
	if out != "" {
		html, err := snap.HTML()
		if err != nil {
			return rep, errors.Join(runErr, err)
		}
		if err := os.WriteFile(out, []byte(html), 0o644); err != nil {
			return rep, errors.Join(runErr, fmt.Errorf("write snapshot: %w", err))
		}
	}
	return rep, runErr
}

func runLive(ctx context.Context, f *flow.Flow, pageURL string, n notify.Notifier, opts []iframe.Option) (*flow.Report, error) {
	s, err := browser.Open(ctx, browserOptions())
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			log.Warn("close browser", zap.Error(cerr))
		}
	}()

	if err := s.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}

	doc := s.Document()
	r := flow.NewRunner(iframe.NewBridge(doc, opts...),
		flow.WithNotifier(n),
		flow.WithAlerter(alert.New(doc, cfg.Alert.IconURL, cfg.Alert.ClickURL, log)),
		flow.WithLogger(log),
	)
	return r.Run(ctx, f)
}

func browserOptions() browser.Options {
	return browser.Options{
		Bin:         cfg.Browser.Bin,
		ControlURL:  cfg.Browser.ControlURL,
		Headless:    cfg.Browser.Headless,
		Stealth:     cfg.Browser.Stealth,
		HumanTyping: cfg.Browser.HumanTyping,
		Logger:      log,
	}
}

func writeReport(path string, rep *flow.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
