package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ecodeli/ecodeli-backend/pkg/config"
	"github.com/ecodeli/ecodeli-backend/pkg/logger"
)

// errDocumentInvalid makes the process exit with status 2 so scripts can
// tell a rejected document from a usage or runtime failure
var errDocumentInvalid = errors.New("document is not valid")

type app struct {
	cfg *config.Config
	log *logger.Logger
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "docvalidate",
		Short:         "Validate courier and merchant documents offline",
		Long:          "Runs the EcoDeli document validation pipeline against local files, without a database or message bus.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("docvalidate")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			a.log = logger.NewWithWriter("docvalidate", stderr)
			return nil
		},
	}
	root.AddCommand(newCheckCmd(a), newTokenCmd(a))
	return root
}

func main() {
	root := newRootCmd(os.Stderr)
	if err := root.Execute(); err != nil {
		if errors.Is(err, errDocumentInvalid) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
