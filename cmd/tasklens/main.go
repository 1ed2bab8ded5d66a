package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	ws := &workspace{}
	root := &cobra.Command{
		Use:           "tasklens",
		Short:         "Manage and sync TaskLens documents from the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if ws.debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVar(&ws.storePath, "store", defaultStorePath(), "path to the local sqlite store")
	root.PersistentFlags().BoolVar(&ws.debug, "debug", false, "enable debug logging")

	root.AddCommand(newCmd(ws))
	root.AddCommand(listCmd(ws))
	root.AddCommand(inspectCmd(ws))
	root.AddCommand(exportCmd(ws))
	root.AddCommand(importCmd(ws))
	root.AddCommand(renderCmd(ws))
	root.AddCommand(refreshCmd(ws))
	root.AddCommand(taskCmd(ws))
	root.AddCommand(placeCmd(ws))
	root.AddCommand(syncCmd(ws))
	return root
}
