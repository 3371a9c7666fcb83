// Package cli is the process entry: flag parsing, logging setup,
// collaborator wiring per run mode, and exit-code mapping. All policy
// lives below it.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds the root command's flags.
type RootOptions struct {
	ConfigPath string
	DryRun     bool
	Verbose    bool
}

// NewRootCommand creates the followup command. One entry point, no
// subcommands: behavior is mode-selected via configuration, with
// --dry-run as the only command-line override.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "followup",
		Short: "Send consolidated follow-up emails for submitted proposals",
		Long: `followup scans the configured proposal logs, decides which proposals
are due for a follow-up, sends one consolidated email per contact, and
writes the new follow-up state back to the logs.

Runs are safe to schedule unattended: a run lock keeps instances
mutually exclusive, store files are backed up before the first write,
and state is committed only for emails that were confirmed sent.

Example:
  followup --config followup.yaml
  followup --config followup.yaml --dry-run --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFollowUp(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "followup.yaml", "path to configuration file")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "simulate: no emails sent, no store writes")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	return cmd
}
