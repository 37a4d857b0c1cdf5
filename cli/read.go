package cli

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hoardstore/hoard/digest"
	"github.com/hoardstore/hoard/repo"
)

var readCmd = &cobra.Command{
	Use:   "read <repo> <hexdigest>",
	Short: "read a single block, writing its bytes to stdout",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		repoPath, hexDigest := args[0], args[1]

		d, err := digest.Parse(hexDigest)
		if err != nil {
			fatalf("hoard read: %v", err)
		}

		r, err := repo.Open(repoPath, false)
		if err != nil {
			fatalf("hoard read: opening %s: %v", repoPath, err)
		}
		defer r.Close()

		p, ok, err := r.Read(d)
		if err != nil {
			fatalf("hoard read: %v", err)
		}
		if !ok {
			logrus.Debugf("digest %s not found in %s", d, repoPath)
			os.Exit(1)
		}

		if _, err := os.Stdout.Write(p); err != nil {
			fatalf("hoard read: writing stdout: %v", err)
		}
	},
}
