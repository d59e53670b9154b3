package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"remux/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [task_id|source_cid]",
		Short: "Show daemon status, or one job when an ID is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					status, err := client.Status()
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Running:    %s\n", yesNo(status.Running))
					fmt.Fprintf(out, "PID:        %d\n", status.PID)
					fmt.Fprintf(out, "API:        %s\n", status.APIBind)
					fmt.Fprintf(out, "Cache root: %s\n", status.CacheRoot)
					fmt.Fprintf(out, "Lock:       %s\n", status.LockPath)
					for state, count := range status.JobCounts {
						fmt.Fprintf(out, "Jobs %-9s %d\n", state+":", count)
					}
					return nil
				}

				resp, err := client.Job(args[0])
				if err != nil {
					return err
				}
				job := resp.Job
				fmt.Fprintf(out, "Task:     %s\n", job.TaskID)
				fmt.Fprintf(out, "Source:   %s\n", job.SourceCID)
				fmt.Fprintf(out, "Status:   %s\n", job.Status)
				fmt.Fprintf(out, "Progress: %d%%\n", job.Progress)
				if job.FailureReason != "" {
					fmt.Fprintf(out, "Failure:  %s\n", job.FailureReason)
				}
				if len(job.Results) > 0 {
					rows := make([][]string, 0, len(job.Results))
					for _, result := range job.Results {
						outcome := result.StorageURI
						if result.ErrKind != "" {
							outcome = result.ErrKind
						}
						rows = append(rows, []string{
							strconv.FormatUint(uint64(result.FormatID), 10),
							outcome,
							fmt.Sprintf("%dms", result.ElapsedMS),
						})
					}
					fmt.Fprintln(out, renderTable(
						[]string{"Format", "Result", "Elapsed"},
						rows,
						[]columnAlignment{alignRight, alignLeft, alignRight},
					))
				}
				return nil
			})
		},
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List transcode jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Jobs()
				if err != nil {
					return err
				}
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(resp.Jobs))
				for _, job := range resp.Jobs {
					rows = append(rows, []string{
						job.TaskID,
						job.SourceCID,
						job.Status,
						strconv.Itoa(job.Progress) + "%",
						job.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Task", "Source", "Status", "Progress", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}
