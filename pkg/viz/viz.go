// Package viz renders documents as SVG through graphviz, either as the task forest or as the change history.
package viz

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/astromechza/tasklens-sync/pkg/bridge"
	"github.com/astromechza/tasklens-sync/pkg/tasklens"
)

func render(outputPath string, build func(graph *cgraph.Graph) error) error {
	g := graphviz.New()
	defer g.Close()

	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}
	defer graph.Close()

	if err := build(graph); err != nil {
		return err
	}

	var buff bytes.Buffer
	if err := g.Render(graph, graphviz.SVG, &buff); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	if err := os.WriteFile(outputPath, buff.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return nil
}

// ForestLabel is the node label used for a task.
func ForestLabel(task tasklens.PersistedTask) string {
	if task.Status == tasklens.StatusDone {
		return "✓ " + task.Title
	}
	return task.Title
}

// RenderForest draws each task as a node with an edge from parent to child, visiting children in list order.
func RenderForest(state tasklens.TunnelState, outputPath string) error {
	return render(outputPath, func(graph *cgraph.Graph) error {
		nodes := make(map[tasklens.TaskID]*cgraph.Node, len(state.Tasks))
		node := func(id tasklens.TaskID) (*cgraph.Node, error) {
			if n, ok := nodes[id]; ok {
				return n, nil
			}
			n, err := graph.CreateNode(string(id))
			if err != nil {
				return nil, fmt.Errorf("failed to create node: %w", err)
			}
			n.SetLabel(ForestLabel(state.Tasks[id]))
			nodes[id] = n
			return n, nil
		}
		expanded := make(map[tasklens.TaskID]bool, len(state.Tasks))
		stack := make([]tasklens.TaskID, 0, len(state.RootTaskIDs))
		for i := len(state.RootTaskIDs) - 1; i >= 0; i-- {
			stack = append(stack, state.RootTaskIDs[i])
		}
		edges := 0
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			task, ok := state.Tasks[id]
			if !ok || expanded[id] {
				continue
			}
			expanded[id] = true
			n, err := node(id)
			if err != nil {
				return err
			}
			for i := len(task.ChildTaskIDs) - 1; i >= 0; i-- {
				childID := task.ChildTaskIDs[i]
				if _, ok := state.Tasks[childID]; !ok {
					continue
				}
				child, err := node(childID)
				if err != nil {
					return err
				}
				edges++
				if _, err := graph.CreateEdge(strconv.Itoa(edges), n, child); err != nil {
					return fmt.Errorf("failed to create edge: %w", err)
				}
				stack = append(stack, childID)
			}
		}
		return nil
	})
}

// RenderHistory draws the change graph, labelling every change with its author and the number of tasks at that point.
func RenderHistory(doc *automerge.Doc, outputPath string) error {
	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}
	return render(outputPath, func(graph *cgraph.Graph) error {
		nodeMap := make(map[string]*cgraph.Node)
		edges := 0
		for _, change := range changes {
			docAt, err := doc.Fork(change.Hash())
			if err != nil {
				return fmt.Errorf("failed to checkout %s: %w", change.Hash(), err)
			}
			tasks := "?"
			if state, err := bridge.Hydrate(docAt); err == nil {
				tasks = strconv.Itoa(len(state.Tasks))
			}

			n, err := graph.CreateNode(change.Hash().String())
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}
			n.SetLabel(fmt.Sprintf("%s %s@%d %s tasks=%s", change.Hash().String()[:8], change.ActorID()[:8], change.ActorSeq(), change.Message(), tasks))
			nodeMap[n.Name()] = n

			for _, hash := range change.Dependencies() {
				parent, ok := nodeMap[hash.String()]
				if !ok {
					continue
				}
				edges++
				if _, err := graph.CreateEdge(strconv.Itoa(edges), parent, n); err != nil {
					return fmt.Errorf("failed to create edge: %w", err)
				}
			}
		}
		return nil
	})
}

func tempPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("%d%d.svg", time.Now().UnixNano(), rand.Int()))
}

func RenderToTemp(state tasklens.TunnelState) (string, error) {
	tf := tempPath()
	if err := RenderForest(state, tf); err != nil {
		return "", err
	}
	return tf, nil
}

func RenderHistoryToTemp(doc *automerge.Doc) (string, error) {
	tf := tempPath()
	if err := RenderHistory(doc, tf); err != nil {
		return "", err
	}
	return tf, nil
}
