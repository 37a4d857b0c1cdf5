package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hoardstore/hoard/repo"
)

var writeCmd = &cobra.Command{
	Use:   "write <repo> <file>",
	Short: "write a single block into an append-only repository",
	Long:  "write a single block (at most 65535 bytes) into an append-only repository, printing its hex digest",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		repoPath, filePath := args[0], args[1]

		p, err := os.ReadFile(filePath)
		if err != nil {
			fatalf("hoard write: reading %s: %v", filePath, err)
		}
		if len(p) > repo.MaxBlockSize {
			fatalf("hoard write: %s is %d bytes, exceeds the %d byte single-block limit (use writelong)", filePath, len(p), repo.MaxBlockSize)
		}

		r, err := repo.OpenWithCompressionLevel(repoPath, true, cfg.Compression.Level)
		if err != nil {
			fatalf("hoard write: opening %s: %v", repoPath, err)
		}
		defer r.Close()

		d, err := r.Write(p)
		if err != nil {
			fatalf("hoard write: %v", err)
		}
		if err := r.Sync(); err != nil {
			fatalf("hoard write: sync: %v", err)
		}

		logrus.Debugf("wrote %d bytes to %s", len(p), repoPath)
		fmt.Println(d.String())
	},
}
