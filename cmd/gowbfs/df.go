package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dfCmd = &cobra.Command{
	Use:   "df CONTAINER",
	Short: "Report a WBFS container's block usage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, dev, err := openContainer(args[0])
		if err != nil {
			return err
		}
		defer dev.Close()

		n, err := c.CountDiscs()
		if err != nil {
			return err
		}

		blockSize := c.BlockSize()
		fmt.Fprintf(cmd.OutOrStdout(), "block size: %d bytes\n", blockSize)
		fmt.Fprintf(cmd.OutOrStdout(), "blocks: %d free / %d total\n", c.FreeBlocks(), c.TotalBlocks())
		fmt.Fprintf(cmd.OutOrStdout(), "disc slots: %d used / %d total\n", n, c.DiscCapacity())
		return nil
	},
}
