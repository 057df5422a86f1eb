package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grez-lucas/iframe-bridge/internal/browser"
)

// discover <url>: print every iframe on the page with its id, name and src.
func discoverCmd() *cobra.Command {
	var (
		manual bool
		match  string
	)

	cmd := &cobra.Command{
		Use:   "discover <url>",
		Short: "Print the iframe tree of a page",
		Long: "Open <url> and print the iframe tree. With --manual the browser stays\n" +
			"open and the tree is printed again each time ENTER is pressed, so pages\n" +
			"behind a login can be inspected.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var g glob.Glob
			if match != "" {
				var err error
				if g, err = glob.Compile(match); err != nil {
					return fmt.Errorf("invalid --match pattern: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withPage(ctx, args[0], manual, func(s *browser.Session) error {
				if err := browser.WaitForIFrames(s.Page); err != nil {
					log.Warn("iframes did not settle", zap.Error(err))
				}
				nodes, err := browser.FrameTree(s.Page)
				if err != nil {
					return err
				}
				info, err := s.Page.Info()
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\n", info.URL)
				}
				if g != nil {
					nodes = filterFrames(nodes, g)
				}
				printFrames(cmd.OutOrStdout(), nodes, 1)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&manual, "manual", false, "wait for ENTER before each inspection")
	cmd.Flags().StringVar(&match, "match", "", `only show iframes whose id or name matches this glob, e.g. "ptModFrame_*"`)
	return cmd
}

func printFrames(w io.Writer, nodes []browser.FrameNode, depth int) {
	if depth == 1 && len(nodes) == 0 {
		fmt.Fprintln(w, "  (no iframes)")
		return
	}
	indent := strings.Repeat("  ", depth)
	for i, n := range nodes {
		fmt.Fprintf(w, "%s%s", indent, n.Label(i))
		if n.Src != "" {
			fmt.Fprintf(w, " src=%s", n.Src)
		}
		if !n.Visible {
			fmt.Fprint(w, " (hidden)")
		}
		if n.Err != nil {
			fmt.Fprintf(w, " error=%v", n.Err)
		}
		fmt.Fprintln(w)
		printFrames(w, n.Children, depth+1)
	}
}

// filterFrames keeps the frames matching g and the ancestors leading to them.
func filterFrames(nodes []browser.FrameNode, g glob.Glob) []browser.FrameNode {
	var out []browser.FrameNode
	for _, n := range nodes {
		n.Children = filterFrames(n.Children, g)
		if len(n.Children) > 0 || (n.ID != "" && g.Match(n.ID)) || (n.Name != "" && g.Match(n.Name)) {
			out = append(out, n)
		}
	}
	return out
}

// withPage opens the browser at pageURL and calls inspect once. With manual
// it instead prompts on stdin and calls inspect after every ENTER until
// "quit" or EOF; "skip" moves on without inspecting.
func withPage(ctx context.Context, pageURL string, manual bool, inspect func(*browser.Session) error) error {
	opts := browserOptions()
	if manual {
		opts.Headless = false
	}
	s, err := browser.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			log.Warn("close browser", zap.Error(cerr))
		}
	}()

	if err := s.Navigate(ctx, pageURL); err != nil {
		return err
	}
	if !manual {
		return inspect(s)
	}

	in := bufio.NewReader(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "Press ENTER to inspect the current page ('skip', 'quit'): ")
		line, err := in.ReadString('\n')
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "quit", "q":
			return nil
		case "skip":
			continue
		}
		if err := inspect(s); err != nil {
			log.Error("inspect failed", zap.Error(err))
		}
	}
}
