package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm CONTAINER GAME_ID",
	Short: "Remove a disc from a WBFS container",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, dev, err := openContainer(args[0])
		if err != nil {
			return err
		}
		defer dev.Close()

		if err := c.RemoveDisc(args[1]); err != nil {
			return fmt.Errorf("rm: %w", err)
		}
		return nil
	},
}
