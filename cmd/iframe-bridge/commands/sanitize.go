package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grez-lucas/iframe-bridge/internal/testutil"
)

// sanitize <in.har>: redact credentials and session data from a HAR file.
func sanitizeCmd() *cobra.Command {
	var (
		out    string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "sanitize <in.har>",
		Short: "Redact credentials from a recorded HAR file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			har, err := testutil.LoadHAR(args[0])
			if err != nil {
				return err
			}

			count := testutil.Redactions(har)
			fmt.Fprintf(cmd.OutOrStdout(), "%d entries, %d value(s) to redact\n", len(har.Entries), count)
			if dryRun {
				return nil
			}

			dst := out
			if dst == "" {
				dst = args[0]
			}
			if err := testutil.SaveHAR(dst, testutil.Sanitize(har)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", dst)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: overwrite the input)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only count what would be redacted")
	return cmd
}
