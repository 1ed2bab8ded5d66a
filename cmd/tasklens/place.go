package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/astromechza/tasklens-sync/pkg/dispatch"
	"github.com/astromechza/tasklens-sync/pkg/replica"
	"github.com/astromechza/tasklens-sync/pkg/tasklens"
)

func placeCmd(ws *workspace) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "place",
		Short: "Manage the places tasks can be tied to",
	}
	cmd.AddCommand(placeAddCmd(ws), placeRenameCmd(ws), placeRmCmd(ws), placeLsCmd(ws))
	return cmd
}

func toPlaceIDs(in []string) []tasklens.PlaceID {
	out := make([]tasklens.PlaceID, len(in))
	for i, s := range in {
		out[i] = tasklens.PlaceID(s)
	}
	return out
}

func placeAddCmd(ws *workspace) *cobra.Command {
	var hours string
	var include []string
	cmd := &cobra.Command{
		Use:   "add <url> <name>",
		Short: "Add a place and print its id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := tasklens.NewPlaceID()
			if err := ws.mutate(cmd.Context(), args[0], func(r *replica.Replica) error {
				return r.Dispatch(dispatch.CreatePlace{ID: id, Name: args[1], Hours: hours, IncludedPlaces: toPlaceIDs(include)})
			}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&hours, "hours", "", "opening hours as json")
	cmd.Flags().StringSliceVar(&include, "include", nil, "ids of places contained in this one")
	return cmd
}

func placeRenameCmd(ws *workspace) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <url> <place> <name>",
		Short: "Rename a place",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ws.mutate(cmd.Context(), args[0], func(r *replica.Replica) error {
				return r.Dispatch(dispatch.UpdatePlace{ID: tasklens.PlaceID(args[1]), Updates: dispatch.PlaceUpdates{Name: &args[2]}})
			})
		},
	}
}

func placeRmCmd(ws *workspace) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <url> <place>",
		Short: "Delete a place; tasks using it lose their place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ws.mutate(cmd.Context(), args[0], func(r *replica.Replica) error {
				return r.Dispatch(dispatch.DeletePlace{ID: tasklens.PlaceID(args[1])})
			})
		},
	}
}

func placeLsCmd(ws *workspace) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <url>",
		Short: "List places",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ws.read(cmd.Context(), args[0], func(r *replica.Replica) error {
				state, err := r.State()
				if err != nil {
					return err
				}
				places := make([]tasklens.Place, 0, len(state.Places))
				for _, p := range state.Places {
					places = append(places, p)
				}
				sort.Slice(places, func(i, j int) bool { return places[i].Name < places[j].Name })
				for _, p := range places {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", p.ID, p.Name)
				}
				return nil
			})
		},
	}
}
