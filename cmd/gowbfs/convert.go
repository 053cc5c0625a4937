package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gowbfs/gowbfs/pkg/wbfs"
	"github.com/gowbfs/gowbfs/pkg/wiidisc"
)

// convertCmd is the one-shot ISO-to-WBFS convenience path: format a
// fresh single-disc container sized to the source and add it, copying
// the source verbatim (Copy11) unless the caller passes --copy11=false,
// in which case the selector flag decides inclusion. This differs from
// add's default, which leaves Copy11 off and uses the selector flag's
// default (ALL_PARTITIONS) to decide inclusion;
// convert is meant for "just archive this disc" and favors the safer,
// lossless copy.
var convertCmd = &cobra.Command{
	Use:   "convert SRC.ISO DST.wbfs",
	Short: "Convert a disc image into a new single-disc WBFS container",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		selector, _ := cmd.Flags().GetUint32("selector")
		copy11, _ := cmd.Flags().GetBool("copy11")
		if !cmd.Flags().Changed("copy11") {
			copy11 = true
		}

		if _, err := os.Stat(args[1]); err == nil {
			overwrite, _ := cmd.Flags().GetBool("overwrite")
			if !overwrite && !options.Overwrite {
				return fmt.Errorf("convert: %s already exists, pass --overwrite", args[1])
			}
			os.Remove(args[1])
		}

		src, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer src.Close()

		fi, err := src.Stat()
		if err != nil {
			return err
		}
		srcSectors := uint32(fi.Size() / wiidisc.WiiSectorSize)

		c, dev, err := formatContainer(args[1], fi.Size())
		if err != nil {
			return err
		}
		defer dev.Close()

		progress := view.NewProgress("convert", 0)
		defer progress.Finish(true)

		err = c.AddDisc(isoReadFunc(src), wbfs.AddOptions{
			Selector:         wiidisc.Selector(selector),
			Copy11:           copy11,
			SourceWiiSectors: srcSectors,
		}, progress)
		if err != nil {
			os.Remove(args[1])
			return fmt.Errorf("convert: %w", err)
		}
		return nil
	},
}
