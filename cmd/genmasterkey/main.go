package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/harrylevesque/qrpay/internal/files"
	"github.com/harrylevesque/qrpay/internal/utils"
)

// TODO(tool-genmasterkey-rotate): Add --rotate to re-seal the stored credential under a new key.

func main() {
	dir := flag.String("dir", utils.DefaultDataDir(), "data directory to write master.key into")
	flag.Parse()

	dataDir := utils.ExpandHome(*dir)
	if _, err := files.CreateMasterKey(dataDir); err != nil {
		if errors.Is(err, files.ErrMasterKeyExists) {
			fmt.Fprintf(os.Stderr, "Error: %s already exists. Refusing to overwrite.\n", files.MasterKeyPath(dataDir))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
	fmt.Printf("Master key written to %s\n", files.MasterKeyPath(dataDir))
}
