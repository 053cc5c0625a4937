package main

import (
	"fmt"

	"github.com/sisatech/tablewriter"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls CONTAINER",
	Short: "List the discs stored in a WBFS container",
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

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"GAME ID", "TITLE", "BLOCKS"})

		found := 0
		for i := 0; i < c.DiscCapacity() && found < n; i++ {
			info, err := c.GetDiscInfo(i)
			if err != nil {
				return err
			}
			if info == nil {
				continue
			}
			found++
			title := trimTitle(info.Header[0x20:0x60])
			table.Append([]string{info.GameID, title, fmt.Sprintf("%d", info.UsedBlocks)})
		}
		table.Render()
		return nil
	},
}

func trimTitle(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}
