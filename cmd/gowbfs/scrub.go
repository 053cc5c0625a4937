package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gowbfs/gowbfs/pkg/scrub"
	"github.com/gowbfs/gowbfs/pkg/wiidisc"
)

func init() {
	for _, c := range []*cobra.Command{scrubCmd, convertCmd} {
		f := c.Flags()
		f.Bool("overwrite", false, "replace an existing destination")
		f.Bool("trim", false, "size output to the last live group")
		f.Bool("zero-sparse", false, "also hole groups whose payload is bitwise zero")
		f.Bool("block-granularity", false, "scrub at WBFS-block granularity instead of per Wii sector")
		f.Uint32("selector", uint32(wiidisc.SelectorAll), "partition selector")
	}
	convertCmd.Flags().Bool("copy11", false, "copy the source verbatim instead of selector-filtered partitions (default true)")
}

func runScrub(cmd *cobra.Command, srcPath, dstPath string) error {
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	trim, _ := cmd.Flags().GetBool("trim")
	zeroSparse, _ := cmd.Flags().GetBool("zero-sparse")
	blockGranularity, _ := cmd.Flags().GetBool("block-granularity")
	selector, _ := cmd.Flags().GetUint32("selector")

	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	fi, err := src.Stat()
	if err != nil {
		return err
	}
	srcSectors := uint32(fi.Size() / wiidisc.WiiSectorSize)

	dst, err := scrub.CreateSparseFile(dstPath, overwrite || options.Overwrite)
	if err != nil {
		return err
	}
	defer dst.Close()

	granularity := 1
	if blockGranularity {
		granularity = 64
	}

	progress := view.NewProgress("scrub", 0)
	_, err = scrub.Scrub(isoReadFunc(src), srcSectors, dst, scrub.Options{
		Selector:              wiidisc.Selector(selector),
		GranularityWiiSectors: granularity,
		ZeroSparse:            zeroSparse || options.ZeroSparse,
		Trim:                  trim || options.Trim,
	}, progress)
	progress.Finish(err == nil)
	if err != nil {
		os.Remove(dstPath)
		return fmt.Errorf("scrub: %w", err)
	}
	return nil
}

var scrubCmd = &cobra.Command{
	Use:   "scrub SRC.ISO DST.ISO",
	Short: "Rewrite a disc image as a sparse file containing only live sectors",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScrub(cmd, args[0], args[1])
	},
}
