package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/pageprobe/internal/report"
	"github.com/ibeckermayer/pageprobe/internal/store"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent runs, or the results of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := store.HistoryPath()
			if err != nil {
				return err
			}
			s, err := store.New(path)
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := s.FindRun(args[0])
				if err != nil {
					return err
				}
				results, err := s.Results(run.ID)
				if err != nil {
					return err
				}
				fmt.Fprint(out, report.RunDetail(run, results))
				return nil
			}

			runs, err := s.ListRuns(limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, report.History(runs))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}
