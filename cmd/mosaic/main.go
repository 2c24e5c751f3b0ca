package main

import (
	"fmt"
	"os"

	"github.com/cadre-oss/mosaic/internal/cli"
	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if s := mosaicerrors.Suggestion(err); s != "" {
			fmt.Fprintln(os.Stderr, "Hint: ", s)
		}
		os.Exit(1)
	}
}
