package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/spoolq/internal/dlq"
)

func newDLQCmd(a *app) *cobra.Command {
	var (
		dir       string
		queueName string
	)
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect or purge quarantined messages",
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&dir, "dir", "", "quarantine directory (default: deadLetterDir of --queue in the config file)")
	pf.StringVarP(&queueName, "queue", "q", "", "restrict to one queue (default: all queues)")

	open := func() (*dlq.Store, error) {
		d := dir
		if d == "" && queueName != "" {
			if o, ok := a.cfg.Queue(queueName); ok {
				d = o.DeadLetterDir
			}
		}
		if d == "" {
			return nil, errors.New("no quarantine directory: pass --dir or configure deadLetterDir for --queue")
		}
		return dlq.Open(d)
	}

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List quarantined messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			recs, err := s.List(queueName)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tID\tFILE\tQUARANTINED\tBYTES\tREASON")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					r.Queue, r.ID, r.File, r.QuarantinedAt.Format(time.RFC3339), len(r.Content), r.Reason)
			}
			return w.Flush()
		},
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete quarantined messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			n, err := s.Purge(queueName)
			if err != nil {
				return err
			}
			a.log.Info("quarantine purged", "dir", s.Root(), "queue", queueName, "count", n)
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d\n", n)
			return nil
		},
	}

	cmd.AddCommand(ls, purge)
	return cmd
}
