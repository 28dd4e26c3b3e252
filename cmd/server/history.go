package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatrelay/internal/proto"
	"github.com/vovakirdan/chatrelay/internal/store/sqlite"
)

var (
	historyRoom  string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or clear stored room history",
	Long: `Operate on the history table directly. Run these while the server
is stopped; a running server keeps its own in-memory copy.`,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete stored history for one room, or all rooms without --room",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.ClearHistory(cmd.Context(), historyRoom)
		if err != nil {
			return err
		}
		target := historyRoom
		if target == "" {
			target = "all rooms"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries from %s\n", n, target)
		return nil
	},
}

var historyTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the most recent stored lines of a room",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if historyRoom == "" {
			return fmt.Errorf("--room is required")
		}
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListHistory(cmd.Context(), historyRoom, historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintf(out, "[%s] %s: %s\n", e.CreatedAt.Format(proto.HistoryTimeLayout), e.Author, e.Text)
		}
		return nil
	},
}

func init() {
	historyClearCmd.Flags().StringVar(&historyRoom, "room", "", "room to clear")
	historyTailCmd.Flags().StringVar(&historyRoom, "room", "", "room to print")
	historyTailCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of lines")

	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historyTailCmd)
}
