package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/callflow/internal/cli"
	redisadapter "github.com/aretw0/callflow/pkg/adapters/redis"
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Inspect recorded conversations",
	Long:  `List, show and remove the transcripts recorded in Redis (redis.addr must be set).`,
}

var transcriptLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List sessions with a transcript",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := openRecorder(cmd)
		if err != nil {
			return err
		}
		defer rec.Close()

		ids, err := rec.Sessions(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No transcripts found.")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(out, "- "+id)
		}
		return nil
	},
}

var transcriptShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the transcript of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := openRecorder(cmd)
		if err != nil {
			return err
		}
		defer rec.Close()

		entries, err := rec.Transcript(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load transcript %q: %w", args[0], err)
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s %-6s %s\n", e.At.Format("15:04:05"), e.Role, e.Text)
		}
		return nil
	},
}

var transcriptRmCmd = &cobra.Command{
	Use:   "rm <session-id>",
	Short: "Remove the transcript of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := openRecorder(cmd)
		if err != nil {
			return err
		}
		defer rec.Close()

		if err := rec.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Transcript '%s' removed.\n", args[0])
		return nil
	},
}

func openRecorder(cmd *cobra.Command) (*redisadapter.Recorder, error) {
	cfg, logger, err := cli.Load(runOptions(cmd, nil))
	if err != nil {
		return nil, err
	}
	return cli.OpenRecorder(cmd.Context(), cfg.Redis, logger)
}

func init() {
	rootCmd.AddCommand(transcriptCmd)
	transcriptCmd.AddCommand(transcriptLsCmd)
	transcriptCmd.AddCommand(transcriptShowCmd)
	transcriptCmd.AddCommand(transcriptRmCmd)
	transcriptShowCmd.Flags().Bool("json", false, "Print entries as JSON")
}
