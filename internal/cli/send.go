package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// BroadcastOptions holds flags for the broadcast command.
type BroadcastOptions struct {
	*RootOptions
	Subject uint
}

// NewBroadcastCommand creates the broadcast command.
func NewBroadcastCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BroadcastOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Send the current issue of a subject to all active subscribers",
		Long: `Send the approved issue at the subject's current sequence number to every
active subscriber, then advance the sequence.

Exits 1 when the broadcast fails; the sequence is left unchanged so the run
can be retried.

Example:
  newsletter broadcast --subject 3
  newsletter broadcast --subject 3 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := bootstrap(cmd, opts.RootOptions, "broadcast")
			if err != nil {
				return err
			}
			defer cleanup()

			res := a.Sends.SendToAllSubscribers(cmd.Context(), opts.Subject)
			if err := writeResult(cmd.OutOrStdout(), opts.Format, res, func(w io.Writer) {
				if res.Success {
					fmt.Fprintf(w, "subject %d sequence %d: issue %d sent=%d failed=%d\n",
						res.SubjectID, res.SequenceNumber, res.IssueID, res.TotalSent, res.TotalFailed)
				} else {
					fmt.Fprintf(w, "subject %d sequence %d: broadcast failed: %s\n",
						res.SubjectID, res.SequenceNumber, res.Error)
				}
				writeFailed(w, res.FailedUserIDs)
			}); err != nil {
				return err
			}
			if !res.Success {
				return NewExitError(ExitFailure, "broadcast failed: "+res.Error)
			}
			return nil
		},
	}

	cmd.Flags().UintVar(&opts.Subject, "subject", 0, "subject id (required)")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

// ResendOptions holds flags for the resend command.
type ResendOptions struct {
	*RootOptions
	Issue uint
}

// NewResendCommand creates the resend command.
func NewResendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resend",
		Short: "Retry failed deliveries of a sent issue",
		Long: `Retry pending, failed, and bounced deliveries of a sent issue for recipients
who are still actively subscribed. Totals cover this run only.

Example:
  newsletter resend --issue 42`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := bootstrap(cmd, opts.RootOptions, "resend")
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := a.Sends.ResendToFailedUsers(cmd.Context(), opts.Issue)
			if err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("resend issue %d", opts.Issue), err)
			}
			return writeResult(cmd.OutOrStdout(), opts.Format, res, func(w io.Writer) {
				fmt.Fprintf(w, "issue %d: retried=%d sent=%d failed=%d\n",
					opts.Issue, res.ResendCount, res.TotalSent, res.TotalFailed)
				writeFailed(w, res.FailedUserIDs)
			})
		},
	}

	cmd.Flags().UintVar(&opts.Issue, "issue", 0, "issue id (required)")
	_ = cmd.MarkFlagRequired("issue")

	return cmd
}

// SendAdminOptions holds flags for the send-admin command.
type SendAdminOptions struct {
	*RootOptions
	Topic    uint
	Sequence int
}

// NewSendAdminCommand creates the send-admin command.
func NewSendAdminCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendAdminOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send-admin",
		Short: "Send an issue preview to ADMIN_EMAIL",
		Long: `Send the approved issue of a topic to the configured admin address for
review. Subscribers are not contacted.

Example:
  newsletter send-admin --topic 7 --seq 12`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := bootstrap(cmd, opts.RootOptions, "send-admin")
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := a.Sends.SendToAdmin(cmd.Context(), opts.Topic, opts.Sequence)
			if err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("preview topic %d", opts.Topic), err)
			}
			return writeResult(cmd.OutOrStdout(), opts.Format, res, func(w io.Writer) {
				fmt.Fprintf(w, "preview of topic %d sent to %s\n", opts.Topic, a.Config.Mail.AdminEmail)
			})
		},
	}

	cmd.Flags().UintVar(&opts.Topic, "topic", 0, "topic id (required)")
	cmd.Flags().IntVar(&opts.Sequence, "seq", 0, "sequence number used in links (0 uses the topic's own)")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}
