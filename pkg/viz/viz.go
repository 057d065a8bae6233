// Package viz draws the change history of a task document: one node per change labelled with its actor,
// sequence number and the task count at that point, with edges from each dependency.
package viz

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/astromechza/tasksync/pkg/taskdoc"
)

func label(r taskdoc.Revision) string {
	short := r.Hash
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s %s@%d tasks=%d", short, r.Actor, r.Seq, r.Tasks)
}

// WriteDot writes the history as a graphviz dot digraph.
func WriteDot(w io.Writer, revisions []taskdoc.Revision) error {
	if _, err := fmt.Fprintln(w, `digraph "log" {`); err != nil {
		return err
	}
	for _, r := range revisions {
		if _, err := fmt.Fprintf(w, "    %q [label=%q]\n", r.Hash, label(r)); err != nil {
			return err
		}
		for _, dep := range r.Dependencies {
			if _, err := fmt.Fprintf(w, "    %q -> %q\n", dep, r.Hash); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

// RenderSvg renders the history graph of doc as svg.
func RenderSvg(doc *taskdoc.Document, w io.Writer) error {
	revisions, err := doc.History()
	if err != nil {
		return err
	}

	g := graphviz.New()
	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}
	defer func() {
		_ = graph.Close()
		_ = g.Close()
	}()

	nodeMap := make(map[string]*cgraph.Node)
	var edgeCounter uint64
	for _, r := range revisions {
		n, err := graph.CreateNode(r.Hash)
		if err != nil {
			return fmt.Errorf("failed to create node: %w", err)
		}
		n.SetLabel(label(r))
		nodeMap[r.Hash] = n

		for _, dep := range r.Dependencies {
			from, ok := nodeMap[dep]
			if !ok {
				continue
			}
			if _, err := graph.CreateEdge(strconv.Itoa(int(atomic.AddUint64(&edgeCounter, 1))), from, n); err != nil {
				return fmt.Errorf("failed to create edge: %w", err)
			}
		}
	}

	var buff bytes.Buffer
	if err := g.Render(graph, graphviz.SVG, &buff); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	_, err = w.Write(buff.Bytes())
	return err
}

// RenderToFile renders the history graph of doc into outputPath.
func RenderToFile(doc *taskdoc.Document, outputPath string) error {
	var buff bytes.Buffer
	if err := RenderSvg(doc, &buff); err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, buff.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}

// RenderToTemp renders the history graph of doc into a new file in the temp dir and returns its path.
func RenderToTemp(doc *taskdoc.Document) (string, error) {
	tf := filepath.Join(os.TempDir(), fmt.Sprintf("%d%d.svg", time.Now().UnixNano(), rand.Int()))
	if err := RenderToFile(doc, tf); err != nil {
		return "", err
	}
	return tf, nil
}
