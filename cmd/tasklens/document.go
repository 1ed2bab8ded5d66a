package main

import (
	"fmt"
	"os"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/spf13/cobra"

	"github.com/astromechza/tasklens-sync/pkg/bridge"
	"github.com/astromechza/tasklens-sync/pkg/dispatch"
	"github.com/astromechza/tasklens-sync/pkg/docid"
	"github.com/astromechza/tasklens-sync/pkg/replica"
	"github.com/astromechza/tasklens-sync/pkg/tasklens"
	"github.com/astromechza/tasklens-sync/pkg/viz"
)

func newCmd(ws *workspace) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create an empty document and print its url",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, closer, err := ws.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closer()
			r, err := replica.New(docid.New())
			if err != nil {
				return err
			}
			if err := ws.save(cmd.Context(), ds, r); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.ID().URL())
			return nil
		},
	}
}

func listCmd(ws *workspace) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the documents in the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, closer, err := ws.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closer()
			ids, err := ds.Documents(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id.URL())
			}
			return nil
		},
	}
}

func inspectCmd(ws *workspace) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <url>",
		Short: "Validate a document, report repairs and print the healed snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ws.read(cmd.Context(), args[0], func(r *replica.Replica) error {
				doc, err := automerge.Load(r.Save())
				if err != nil {
					return fmt.Errorf("failed to load doc: %w", err)
				}
				state, err := bridge.Hydrate(doc)
				if err != nil {
					return err
				}
				repairs := tasklens.Heal(&state)
				if err := tasklens.CheckInvariants(&state); err != nil {
					return fmt.Errorf("document is still inconsistent after healing: %w", err)
				}
				raw, err := bridge.Export(&state)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "# %d tasks, %d places, %d repairs, heads %v\n", len(state.Tasks), len(state.Places), repairs, doc.Heads())
				fmt.Fprintln(out, string(raw))
				return nil
			})
		},
	}
}

func exportCmd(ws *workspace) *cobra.Command {
	var raw bool
	var saveTo string
	cmd := &cobra.Command{
		Use:   "export <url>",
		Short: "Print the document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ws.read(cmd.Context(), args[0], func(r *replica.Replica) error {
				if saveTo != "" {
					if err := os.WriteFile(saveTo, r.Save(), 0o644); err != nil {
						return fmt.Errorf("failed to write %s: %w", saveTo, err)
					}
					return nil
				}
				var out []byte
				if raw {
					doc, err := automerge.Load(r.Save())
					if err != nil {
						return fmt.Errorf("failed to load doc: %w", err)
					}
					if out, err = bridge.DocumentJSON(doc); err != nil {
						return err
					}
				} else {
					state, err := r.State()
					if err != nil {
						return err
					}
					if out, err = bridge.Export(&state); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the stored document tree without hydrating it")
	cmd.Flags().StringVar(&saveTo, "save", "", "write the binary document to this file instead, for cmd/debug")
	return cmd
}

func importCmd(ws *workspace) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create a new document from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			state, err := bridge.Import(raw)
			if err != nil {
				return err
			}
			ds, closer, err := ws.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closer()
			r, err := replica.New(docid.New())
			if err != nil {
				return err
			}
			if err := r.Replace(state); err != nil {
				return err
			}
			if err := ws.save(cmd.Context(), ds, r); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.ID().URL())
			return nil
		},
	}
}

func renderCmd(ws *workspace) *cobra.Command {
	var history bool
	var output string
	cmd := &cobra.Command{
		Use:   "render <url>",
		Short: "Render the task forest, or the change history, to SVG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ws.read(cmd.Context(), args[0], func(r *replica.Replica) error {
				path := output
				var err error
				switch {
				case history:
					doc, loadErr := automerge.Load(r.Save())
					if loadErr != nil {
						return fmt.Errorf("failed to load doc: %w", loadErr)
					}
					if path == "" {
						path, err = viz.RenderHistoryToTemp(doc)
					} else {
						err = viz.RenderHistory(doc, path)
					}
				default:
					state, stateErr := r.State()
					if stateErr != nil {
						return stateErr
					}
					if path == "" {
						path, err = viz.RenderToTemp(state)
					} else {
						err = viz.RenderForest(state, path)
					}
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "file://"+path)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "render the change graph instead of the task forest")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the svg here instead of a temp file")
	return cmd
}

func refreshCmd(ws *workspace) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <url>",
		Short: "Acknowledge completed tasks and wake routines that are due",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ws.mutate(cmd.Context(), args[0], func(r *replica.Replica) error {
				return r.Dispatch(dispatch.RefreshLifecycle{Now: time.Now().UnixMilli()})
			})
		},
	}
}
