package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gowbfs/gowbfs/pkg/wiidisc"
)

var infoCmd = &cobra.Command{
	Use:   "info ISO",
	Short: "Print a Wii disc image's header fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		header := make([]byte, 0x60)
		if _, err := f.ReadAt(header, 0); err != nil {
			return err
		}

		fi, err := f.Stat()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "game id: %s\n", string(header[0:6]))
		fmt.Fprintf(out, "title:   %s\n", trimTitle(header[0x20:0x60]))
		fmt.Fprintf(out, "size:    %d bytes (%d Wii sectors)\n", fi.Size(), fi.Size()/wiidisc.WiiSectorSize)
		return nil
	},
}
