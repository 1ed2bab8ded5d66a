package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/astromechza/tasklens-sync/pkg/dispatch"
	"github.com/astromechza/tasklens-sync/pkg/replica"
	"github.com/astromechza/tasklens-sync/pkg/tasklens"
)

func taskCmd(ws *workspace) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, edit and arrange tasks",
	}
	cmd.AddCommand(taskAddCmd(ws))
	cmd.AddCommand(taskEditCmd(ws))
	cmd.AddCommand(taskDoneCmd(ws))
	cmd.AddCommand(taskMoveCmd(ws))
	cmd.AddCommand(taskRmCmd(ws))
	cmd.AddCommand(taskLsCmd(ws))
	return cmd
}

func optionalTaskID(s string) *tasklens.TaskID {
	if s == "" {
		return nil
	}
	return tasklens.Ptr(tasklens.TaskID(s))
}

func taskAddCmd(ws *workspace) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "add <url> <title>",
		Short: "Add a task and print its id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := tasklens.NewTaskID()
			if err := ws.mutate(cmd.Context(), args[0], func(r *replica.Replica) error {
				return r.Dispatch(dispatch.CreateTask{ID: id, ParentID: optionalTaskID(parent), Title: args[1]})
			}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "id of the parent task")
	return cmd
}

// parseRepeat accepts "<frequency>" or "<frequency>:<interval>", e.g. "weekly:2".
func parseRepeat(s string) (tasklens.RepeatConfig, error) {
	freq, interval, found := strings.Cut(s, ":")
	f, err := tasklens.ParseFrequency(freq)
	if err != nil {
		return tasklens.RepeatConfig{}, err
	}
	rc := tasklens.RepeatConfig{Frequency: f, Interval: 1}
	if found {
		if rc.Interval, err = strconv.ParseInt(interval, 10, 64); err != nil {
			return rc, fmt.Errorf("invalid interval %q: %w", interval, err)
		}
	}
	return rc, nil
}

func taskEditCmd(ws *workspace) *cobra.Command {
	var (
		title, notes, place, repeat, due string
		importance                       float64
		sequential                       bool
	)
	cmd := &cobra.Command{
		Use:   "edit <url> <task>",
		Short: "Change task fields; an empty --place, --repeat or --due clears the value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u dispatch.TaskUpdates
			flags := cmd.Flags()
			if flags.Changed("title") {
				u.Title = &title
			}
			if flags.Changed("notes") {
				u.Notes = &notes
			}
			if flags.Changed("importance") {
				u.Importance = &importance
			}
			if flags.Changed("sequential") {
				u.IsSequential = &sequential
			}
			if flags.Changed("place") {
				if place == "" {
					u.PlaceID = dispatch.Clear[tasklens.PlaceID]()
				} else {
					u.PlaceID = dispatch.Set(tasklens.PlaceID(place))
				}
			}
			if flags.Changed("repeat") {
				if repeat == "" {
					u.RepeatConfig = dispatch.Clear[tasklens.RepeatConfig]()
					u.ScheduleType = tasklens.Ptr(tasklens.ScheduleOnce)
				} else {
					rc, err := parseRepeat(repeat)
					if err != nil {
						return err
					}
					u.RepeatConfig = dispatch.Set(rc)
					u.ScheduleType = tasklens.Ptr(tasklens.ScheduleRoutinely)
				}
			}
			if flags.Changed("due") {
				if due == "" {
					u.DueDate = dispatch.Clear[int64]()
				} else {
					at, err := time.Parse(time.RFC3339, due)
					if err != nil {
						return fmt.Errorf("invalid due date: %w", err)
					}
					u.DueDate = dispatch.Set(at.UnixMilli())
					if !flags.Changed("repeat") {
						u.ScheduleType = tasklens.Ptr(tasklens.ScheduleDueDate)
					}
				}
			}
			return ws.mutate(cmd.Context(), args[0], func(r *replica.Replica) error {
				return r.Dispatch(dispatch.UpdateTask{ID: tasklens.TaskID(args[1]), Updates: u})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&notes, "notes", "", "new notes")
	cmd.Flags().Float64Var(&importance, "importance", tasklens.DefaultImportance, "importance between 0 and 1")
	cmd.Flags().BoolVar(&sequential, "sequential", false, "children must be done in order")
	cmd.Flags().StringVar(&place, "place", "", "place id")
	cmd.Flags().StringVar(&repeat, "repeat", "", "routine as frequency[:interval], e.g. daily or weekly:2")
	cmd.Flags().StringVar(&due, "due", "", "due date in RFC3339")
	return cmd
}

func taskDoneCmd(ws *workspace) *cobra.Command {
	return &cobra.Command{
		Use:   "done <url> <task>",
		Short: "Complete a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ws.mutate(cmd.Context(), args[0], func(r *replica.Replica) error {
				return r.Dispatch(dispatch.CompleteTask{ID: tasklens.TaskID(args[1]), Now: time.Now().UnixMilli()})
			})
		},
	}
}

func taskMoveCmd(ws *workspace) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "move <url> <task>",
		Short: "Move a task under --parent, or to the root when omitted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ws.mutate(cmd.Context(), args[0], func(r *replica.Replica) error {
				return r.Dispatch(dispatch.MoveTask{ID: tasklens.TaskID(args[1]), NewParentID: optionalTaskID(parent)})
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "id of the new parent task")
	return cmd
}

func taskRmCmd(ws *workspace) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <url> <task>",
		Short: "Delete a task and everything below it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ws.mutate(cmd.Context(), args[0], func(r *replica.Replica) error {
				return r.Dispatch(dispatch.DeleteTask{ID: tasklens.TaskID(args[1])})
			})
		},
	}
}

func taskLsCmd(ws *workspace) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <url>",
		Short: "Print the task tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ws.read(cmd.Context(), args[0], func(r *replica.Replica) error {
				state, err := r.State()
				if err != nil {
					return err
				}
				for _, id := range state.RootTaskIDs {
					printTree(cmd.OutOrStdout(), &state, id, 0)
				}
				return nil
			})
		},
	}
}

func printTree(w io.Writer, state *tasklens.TunnelState, id tasklens.TaskID, depth int) {
	task, ok := state.Tasks[id]
	if !ok {
		return
	}
	mark := " "
	if task.Status == tasklens.StatusDone {
		mark = "x"
	}
	fmt.Fprintf(w, "%s[%s] %s  (%s)\n", strings.Repeat("  ", depth), mark, task.Title, id)
	for _, child := range task.ChildTaskIDs {
		printTree(w, state, child, depth+1)
	}
}
