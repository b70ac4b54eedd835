package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aligator/fatdisk"
	"github.com/aligator/fatdisk/checkpoint"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func createCmd() *cobra.Command {
	var (
		preset     string
		paramsFile string
	)
	cmd := &cobra.Command{
		Use:   "create IMAGE",
		Short: "create a new empty disk image",
		Long: `Create a new empty disk image.
The geometry is taken from a preset (small, medium or big) or from a YAML file
which may override single values of the preset.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := loadParams(hostFs, preset, paramsFile)
			if err != nil {
				return err
			}

			e := fatdisk.NewEngine(fatdisk.WithHostFs(hostFs), fatdisk.WithLogger(log.StandardLogger()))
			r := e.CreateDisk(args[0], params)
			if !r.OK() {
				return r.Err
			}
			defer e.Close()

			fmt.Println(r.Message)
			fmt.Println(e.Session().Boot())
			return nil
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "small", "Preset to start from: small, medium or big")
	cmd.Flags().StringVar(&paramsFile, "params", "", "YAML file with creation parameters")

	return cmd
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls IMAGE [PATH]",
		Short: "list a directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := "/"
			if len(args) > 1 {
				p = args[1]
			}

			return withDisk(args[0], func(e *fatdisk.Engine) fatdisk.Result {
				dir, err := e.Session().ListDir(p)
				if err != nil {
					return fatdisk.Result{Message: checkpoint.Message(err), Err: err}
				}
				return fatdisk.Result{Payload: dir.String() + "\n"}
			})
		},
	}
}

func mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir IMAGE PATH",
		Short: "create a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDisk(args[0], func(e *fatdisk.Engine) fatdisk.Result {
				return e.MkDir(args[1])
			})
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm IMAGE PATH",
		Short: "delete a file or a directory with all of its content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDisk(args[0], func(e *fatdisk.Engine) fatdisk.Result {
				return e.DeleteFile(args[1])
			})
		},
	}
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat IMAGE PATH",
		Short: "print the content of a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDisk(args[0], func(e *fatdisk.Engine) fatdisk.Result {
				return e.Cat(args[1])
			})
		},
	}
}

func copyInCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy-in IMAGE SOURCE DESTINATION",
		Short: "copy a host file into the image",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDisk(args[0], func(e *fatdisk.Engine) fatdisk.Result {
				return e.CopyFileFromSystem(args[1], args[2])
			})
		},
	}
}

func copyOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy-out IMAGE SOURCE DESTINATION",
		Short: "copy a file out of the image to the host",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDisk(args[0], func(e *fatdisk.Engine) fatdisk.Result {
				return e.CopyFileToSystem(args[1], args[2])
			})
		},
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info IMAGE",
		Short: "show geometry and usage of the image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDisk(args[0], func(e *fatdisk.Engine) fatdisk.Result {
				return fatdisk.Result{Payload: fmt.Sprintf("%v\n%v\n", e.Session().Boot(), e.GetDiskSpaceInfo())}
			})
		},
	}
}

func treeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree IMAGE [PATH]",
		Short: "list a directory and everything below it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "/"
			if len(args) > 1 {
				root = args[1]
			}

			return withDisk(args[0], func(e *fatdisk.Engine) fatdisk.Result {
				var out strings.Builder
				err := afero.Walk(fatdisk.NewFs(e.Session()), root, func(path string, info os.FileInfo, err error) error {
					if err != nil {
						return err
					}
					if info.IsDir() {
						fmt.Fprintf(&out, "%v/\n", strings.TrimSuffix(filepath.ToSlash(path), "/"))
					} else {
						fmt.Fprintf(&out, "%v %d\n", filepath.ToSlash(path), info.Size())
					}
					return nil
				})
				if err != nil {
					return fatdisk.Result{Message: err.Error(), Err: err}
				}
				return fatdisk.Result{Payload: out.String()}
			})
		},
	}
}
