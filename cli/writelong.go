package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hoardstore/hoard/repo"
	"github.com/hoardstore/hoard/stream"
)

var writeLongCmd = &cobra.Command{
	Use:   "writelong <repo> <file>",
	Short: "stream an arbitrarily large file into an append-only repository",
	Long:  "stream a file of any size through the superblock writer, printing the root hex digest",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		repoPath, filePath := args[0], args[1]

		f, err := os.Open(filePath)
		if err != nil {
			fatalf("hoard writelong: opening %s: %v", filePath, err)
		}
		defer f.Close()

		r, err := repo.OpenWithCompressionLevel(repoPath, true, cfg.Compression.Level)
		if err != nil {
			fatalf("hoard writelong: opening %s: %v", repoPath, err)
		}
		defer r.Close()

		sw := stream.NewWriterWithChunkerParams(r, cfg.Chunker.BufferPot, cfg.Chunker.ModulusPot)
		n, err := io.Copy(sw, f)
		if err != nil {
			fatalf("hoard writelong: %v", err)
		}

		root, err := sw.Close()
		if err != nil {
			fatalf("hoard writelong: %v", err)
		}
		if err := r.Sync(); err != nil {
			fatalf("hoard writelong: sync: %v", err)
		}

		logrus.Debugf("streamed %d bytes to %s", n, repoPath)
		fmt.Println(root.String())
	},
}
