package main

import (
	"fmt"
	"os"

	"github.com/aligator/fatdisk"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// hostFs is the filesystem used for images and copied files.
var hostFs = afero.NewOsFs()

func newCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:               "fatdisk",
		Short:             "work with FAT disk images",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
	}

	cmd.AddCommand(createCmd())
	cmd.AddCommand(lsCmd())
	cmd.AddCommand(treeCmd())
	cmd.AddCommand(mkdirCmd())
	cmd.AddCommand(rmCmd())
	cmd.AddCommand(catCmd())
	cmd.AddCommand(copyInCmd())
	cmd.AddCommand(copyOutCmd())
	cmd.AddCommand(infoCmd())

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warning", "Log level: panic, fatal, error, warning, info, debug or trace")

	return cmd
}

// withDisk opens the image, runs fn and closes the image again.
func withDisk(image string, fn func(e *fatdisk.Engine) fatdisk.Result) error {
	e := fatdisk.NewEngine(fatdisk.WithHostFs(hostFs), fatdisk.WithLogger(log.StandardLogger()))

	if r := e.OpenDisk(image); !r.OK() {
		return r.Err
	}
	defer e.Close()

	r := fn(e)
	if !r.OK() {
		return r.Err
	}
	if r.Payload != "" {
		fmt.Print(r.Payload)
	}
	return nil
}

func main() {
	if err := newCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
