package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gowbfs/gowbfs/pkg/config"
	"github.com/gowbfs/gowbfs/pkg/device"
	"github.com/gowbfs/gowbfs/pkg/elog"
	"github.com/gowbfs/gowbfs/pkg/hdio"
	"github.com/gowbfs/gowbfs/pkg/split"
	"github.com/gowbfs/gowbfs/pkg/wbfs"
)

var (
	flagForce bool
	flagDebug bool

	view    = &elog.CLI{}
	options config.Options
)

func commandInit() {
	options, _ = config.Load()

	rootCmd.PersistentFlags().BoolVar(&flagForce, "force", false, "skip superblock geometry validation")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		view.Debug = flagDebug
		options.Force = flagForce || options.Force
		return nil
	}

	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(dfCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(scrubCmd)
	rootCmd.AddCommand(convertCmd)
}

var rootCmd = &cobra.Command{
	Use:   "gowbfs",
	Short: "gowbfs is a WBFS archive and Wii disc image toolkit",
	Long: `gowbfs packs Wii optical disc images into a content-addressed WBFS
container and extracts them back to full or trimmed disc images, living
atop either a raw block device partition or a set of size-bounded file
splits.`,
}

// isSplitName reports whether path looks like a split-backend archive
// rather than a raw device or plain image file.
func isSplitName(path string) bool {
	return strings.HasSuffix(path, ".wbfs") || strings.HasSuffix(path, ".wbfs.tmp")
}

// openExistingBackend opens path as whichever hdio.Device backend fits
// its name: the split backend for ".wbfs"-suffixed archives, the raw
// backend for anything else (a partition, a device node, or a plain
// image file).
func openExistingBackend(path string) (hdio.Device, uint32, uint8, error) {
	if isSplitName(path) {
		b, err := split.Open(path)
		if err != nil {
			return nil, 0, 0, err
		}
		return b, b.SectorCount(), 9, nil
	}

	r, err := device.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	return r, r.SectorCount(), 9, nil
}

func openContainer(path string) (*wbfs.Container, hdio.Device, error) {
	dev, nHdSec, hdSecLog2, err := openExistingBackend(path)
	if err != nil {
		return nil, nil, err
	}
	c, err := wbfs.Open(dev, nHdSec, hdSecLog2, options.Force)
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	return c, dev, nil
}

func formatContainer(path string, totalSize int64) (*wbfs.Container, hdio.Device, error) {
	var dev hdio.Device
	var nHdSec uint32

	if isSplitName(path) {
		b, err := split.Create(path, options.SplitSize, totalSize)
		if err != nil {
			return nil, nil, err
		}
		dev = b
		nHdSec = b.SectorCount()
	} else {
		r, err := device.Open(path)
		if err != nil {
			return nil, nil, err
		}
		dev = r
		nHdSec = r.SectorCount()
	}

	c, err := wbfs.Format(dev, nHdSec, 9)
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	return c, dev, nil
}

// isoReadFunc adapts a plain disc-image file to wiidisc.ReadFunc's
// word-offset, byte-count convention.
func isoReadFunc(f *os.File) func(offsetWords, count uint32, buf []byte) error {
	return func(offsetWords, count uint32, buf []byte) error {
		_, err := f.ReadAt(buf[:count], int64(offsetWords)*4)
		return err
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
