package cli

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hoardstore/hoard/digest"
	"github.com/hoardstore/hoard/herr"
	"github.com/hoardstore/hoard/repo"
	"github.com/hoardstore/hoard/stream"
)

var readLongCmd = &cobra.Command{
	Use:   "readlong <repo> <hexdigest>",
	Short: "stream a superblock tree to stdout",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		repoPath, hexDigest := args[0], args[1]

		root, err := digest.Parse(hexDigest)
		if err != nil {
			fatalf("hoard readlong: %v", err)
		}

		r, err := repo.Open(repoPath, false)
		if err != nil {
			fatalf("hoard readlong: opening %s: %v", repoPath, err)
		}
		defer r.Close()

		sr := stream.NewReader(r, root)
		n, err := io.Copy(os.Stdout, sr)
		if err != nil {
			if herr.Is(err, herr.MissingBlock) {
				logrus.Debugf("root %s not found in %s", root, repoPath)
				os.Exit(1)
			}
			fatalf("hoard readlong: %v", err)
		}

		logrus.Debugf("streamed %d bytes from %s", n, repoPath)
	},
}
