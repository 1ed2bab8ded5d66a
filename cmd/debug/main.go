package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/automerge/automerge-go"
	"github.com/spf13/pflag"

	"github.com/astromechza/tasklens-sync/pkg/bridge"
	"github.com/astromechza/tasklens-sync/pkg/tasklens"
)

// debug loads a raw saved document, reports whether it hydrates and heals cleanly, and prints the change graph as dot.
func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	pflag.Parse()
	if pflag.NArg() != 1 {
		return fmt.Errorf("expected one position argument: the file to read")
	}
	buff, err := os.ReadFile(pflag.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	doc, err := automerge.Load(buff)
	if err != nil {
		return fmt.Errorf("failed to load doc: %w", err)
	}
	slog.Info("loaded heads", "heads", doc.Heads())

	state, err := bridge.Hydrate(doc)
	var hydrateErr *bridge.HydrateError
	switch {
	case errors.As(err, &hydrateErr):
		slog.Error("document does not hydrate", "path", hydrateErr.Path, "expected", hydrateErr.Expected, "found", hydrateErr.Found)
	case err != nil:
		return err
	default:
		repairs := tasklens.Heal(&state)
		slog.Info("hydrated", "tasks", len(state.Tasks), "places", len(state.Places), "repairs", repairs)
		if err := tasklens.CheckInvariants(&state); err != nil {
			slog.Error("invariants violated after healing", "err", err)
		}
	}

	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}
	for i, change := range changes {
		slog.Info("change", "i", fmt.Sprintf("%4d", i), "hash", change.Hash(), "actor", change.ActorID(), "message", change.Message(), "dep", change.Dependencies())
	}

	fmt.Println(`digraph "log" {`)
	for _, change := range changes {
		tasks := "?"
		if docAt, err := doc.Fork(change.Hash()); err == nil {
			if s, err := bridge.Hydrate(docAt); err == nil {
				tasks = fmt.Sprint(len(s.Tasks))
			}
		}
		fmt.Printf("    \"%s\" [label=\"%s %s@%d %s\"]\n", change.Hash(), change.Hash().String()[:8], change.ActorID(), change.ActorSeq(), tasks)
		for _, hash := range change.Dependencies() {
			fmt.Printf("    \"%s\" -> \"%s\"\n", hash, change.Hash())
		}
	}
	fmt.Println("}")
	return nil
}
