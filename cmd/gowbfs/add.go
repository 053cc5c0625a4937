package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gowbfs/gowbfs/pkg/wbfs"
	"github.com/gowbfs/gowbfs/pkg/wiidisc"
)

func init() {
	f := addCmd.Flags()
	f.Uint32("selector", uint32(wiidisc.SelectorAll), "partition selector (see wiidisc.Selector)")
	f.Bool("copy11", false, "copy the source verbatim instead of selector-filtering partitions")
}

var addCmd = &cobra.Command{
	Use:   "add CONTAINER ISO",
	Short: "Add a Wii disc image to a WBFS container, formatting it first if needed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		selector, _ := cmd.Flags().GetUint32("selector")
		copy11, _ := cmd.Flags().GetBool("copy11")

		src, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer src.Close()

		fi, err := src.Stat()
		if err != nil {
			return err
		}
		srcSectors := uint32(fi.Size() / wiidisc.WiiSectorSize)

		var c *wbfs.Container
		var dev interface{ Close() error }
		if _, statErr := os.Stat(args[0]); statErr != nil {
			cc, d, err := formatContainer(args[0], fi.Size())
			if err != nil {
				return err
			}
			c, dev = cc, d
		} else {
			cc, d, err := openContainer(args[0])
			if err != nil {
				return err
			}
			c, dev = cc, d
		}
		defer dev.Close()

		progress := view.NewProgress("add", 0)
		defer progress.Finish(true)

		err = c.AddDisc(isoReadFunc(src), wbfs.AddOptions{
			Selector:         wiidisc.Selector(selector),
			Copy11:           copy11,
			SourceWiiSectors: srcSectors,
		}, progress)
		if err != nil {
			return fmt.Errorf("add: %w", err)
		}
		return nil
	},
}
