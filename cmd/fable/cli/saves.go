package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var savesCmd = &cobra.Command{
	Use:   "saves",
	Short: "Manage saved adventures",
}

var savesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved adventures, most recent first",
	Run: func(cmd *cobra.Command, args []string) {
		s := getStore()
		defer s.Close()

		saves, err := s.List(context.Background())
		if err != nil {
			fmt.Printf("Failed to list saves: %v\n", err)
			os.Exit(1)
		}
		if len(saves) == 0 {
			fmt.Println("No saved adventures.")
			return
		}
		for _, sv := range saves {
			fmt.Printf("%s  %-30s  %-16s  %3d turns  %s\n",
				sv.ID, sv.Title, sv.Theme, sv.Turns, sv.LastPlayed.Local().Format("2006-01-02 15:04"))
		}
	},
}

var savesDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a saved adventure",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := getStore()
		defer s.Close()

		if err := s.Delete(context.Background(), args[0]); err != nil {
			fmt.Printf("Failed to delete save: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Deleted.")
	},
}

func init() {
	RootCmd.AddCommand(savesCmd)
	savesCmd.AddCommand(savesListCmd)
	savesCmd.AddCommand(savesDeleteCmd)
}
