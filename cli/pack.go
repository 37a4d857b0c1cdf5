package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hoardstore/hoard/pack"
)

var packCmd = &cobra.Command{
	Use:   "pack <dir> <out.pack>",
	Short: "build a packfile from every loose block file in a directory",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		dir, out := args[0], args[1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			fatalf("hoard pack: reading %s: %v", dir, err)
		}

		w := pack.NewWithLevel(cfg.Compression.Level)
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(dir, e.Name())
			p, err := os.ReadFile(path)
			if err != nil {
				fatalf("hoard pack: reading %s: %v", path, err)
			}
			if _, err := w.Write(p); err != nil {
				fatalf("hoard pack: %s: %v", path, err)
			}
		}

		if err := w.Dump(out); err != nil {
			fatalf("hoard pack: writing %s: %v", out, err)
		}

		logrus.Debugf("packed %d distinct blocks into %s", w.Len(), out)
		fmt.Printf("%d blocks packed into %s\n", w.Len(), out)
	},
}
