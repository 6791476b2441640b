// Command zpaq is a thin demonstration binary over the library
// packages at the repository root: add/extract/list/inspect against a
// journaling archive. It is not a supported CLI surface (spec section 1
// places CLI ergonomics out of scope); it exists so the ambient cobra
// dependency has a main to be exercised from.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/t7a/zpaq/journal"
	"github.com/t7a/zpaq/zpaql"
)

func init() {
	if os.Getenv("DEBUG") == "1" {
		log.SetLevel(log.DebugLevel)
	}
	logrus.SetReportCaller(true)
	formatter := &logrus.TextFormatter{
		CallerPrettyfier: caller(),
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyFile: "caller",
		},
	}
	formatter.TimestampFormat = "15:04:05.999999999"
	logrus.SetFormatter(formatter)
}

func caller() func(*runtime.Frame) (function string, file string) {
	return func(f *runtime.Frame) (function string, file string) {
		p, _ := os.Getwd()
		return "", fmt.Sprintf("%s:%d", strings.TrimPrefix(f.File, p), f.Line)
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var archivePath string
	var password string

	root := &cobra.Command{
		Use:   "zpaq",
		Short: "demonstration CLI over the journaling archive library",
	}
	root.PersistentFlags().StringVar(&archivePath, "archive", "archive.zpaq", "path to the archive file")
	root.PersistentFlags().StringVar(&password, "password", "", "archive password, if encrypted")

	open := func() (*journal.Coordinator, error) {
		if password != "" {
			return journal.OpenEncrypted(archivePath, []byte(password))
		}
		return journal.Open(archivePath)
	}

	root.AddCommand(newAddCmd(open))
	root.AddCommand(newExtractCmd(open))
	root.AddCommand(newListCmd(open))
	root.AddCommand(newInspectCmd())
	return root
}

func newAddCmd(open func() (*journal.Coordinator, error)) *cobra.Command {
	var version uint64
	var timestamp int64
	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "add one or more files as a new version",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()

			var inputs []journal.FileInput
			for _, p := range args {
				f, err := os.Open(p)
				if err != nil {
					return err
				}
				defer f.Close()
				fi, err := f.Stat()
				if err != nil {
					return err
				}
				inputs = append(inputs, journal.FileInput{
					Path:    p,
					Data:    f,
					ModTime: fi.ModTime().Unix(),
				})
			}
			if err := c.AddVersion(version, timestamp, "", inputs); err != nil {
				return err
			}
			log.Infof("committed version %d with %d file(s)", version, len(inputs))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&version, "version", 1, "version number to commit")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "commit timestamp, unix seconds")
	return cmd
}

func newExtractCmd(open func() (*journal.Coordinator, error)) *cobra.Command {
	var version uint64
	var out string
	cmd := &cobra.Command{
		Use:   "extract <path>",
		Short: "extract a path's content as of a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()

			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				return c.Extract(args[0], version, f)
			}
			return c.Extract(args[0], version, w)
		},
	}
	cmd.Flags().Uint64Var(&version, "version", 0, "version to read as of (0 = latest)")
	cmd.Flags().StringVar(&out, "out", "", "output file path (default stdout)")
	return cmd
}

func newListCmd(open func() (*journal.Coordinator, error)) *cobra.Command {
	var version uint64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list live paths as of a version",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()
			for path, mut := range c.List(version) {
				fmt.Printf("%s\t%d bytes\t%d fragment(s)\n", path, mut.Size, len(mut.Fragments))
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&version, "version", 0, "version to list (0 = latest)")
	return cmd
}

// newInspectCmd disassembles a ZPAQL program given as a hex string, the
// way the ZPAQ reference tool ships a disassembler alongside its
// interpreter.
func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <hex-bytecode>",
		Short: "disassemble a ZPAQL program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := hex.DecodeString(args[0])
			if err != nil {
				return err
			}
			fmt.Println(zpaql.Disassemble(prog))
			return nil
		},
	}
}
