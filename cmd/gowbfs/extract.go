package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gowbfs/gowbfs/pkg/wbfserr"
)

func init() {
	f := extractCmd.Flags()
	f.Bool("trim", false, "size output to the last live block instead of nominal disc size")
}

var extractCmd = &cobra.Command{
	Use:   "extract CONTAINER GAME_ID OUTPUT.ISO",
	Short: "Extract a disc from a WBFS container to a disc image",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		trim, _ := cmd.Flags().GetBool("trim")

		c, dev, err := openContainer(args[0])
		if err != nil {
			return err
		}
		defer dev.Close()

		out, err := os.OpenFile(args[2], os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer out.Close()

		progress := view.NewProgress("extract", 0)

		size, err := c.ExtractDisc(args[1], func(offsetWords uint32, buf []byte) error {
			_, err := out.WriteAt(buf, int64(offsetWords)*4)
			return err
		}, trim, progress)
		progress.Finish(err == nil)
		if err != nil {
			os.Remove(args[2])
			return fmt.Errorf("extract: %w", err)
		}

		if err := out.Truncate(size); err != nil {
			return fmt.Errorf("%w: %v", wbfserr.IoError, err)
		}
		return nil
	},
}
