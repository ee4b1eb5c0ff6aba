// Package viz draws the change history of a collection document as a graph: one node per
// change, labelled with the state of a chosen record at that change, and one edge per
// dependency.
package viz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/automerge/automerge-go"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"go.trai.ch/zerr"
)

// Step is one change of a document and the value found at the rendered path after it.
type Step struct {
	Hash    string
	Actor   string
	Seq     uint64
	Message string
	Value   string
	Deps    []string
}

func (s Step) Label() string {
	return fmt.Sprintf("%s %s@%d %s %s", s.Hash[:8], s.Actor, s.Seq, s.Message, s.Value)
}

// History walks every change of doc and reads path at each one. A path that does not exist yet
// renders as null.
func History(doc *automerge.Doc, path ...any) ([]Step, error) {
	changes, err := doc.Changes()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to generate changes")
	}
	out := make([]Step, 0, len(changes))
	for _, change := range changes {
		docAt, err := doc.Fork(change.Hash())
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to checkout"), "hash", change.Hash().String())
		}
		var raw any
		if value, err := docAt.Path(path...).Get(); err == nil {
			raw = value.Interface()
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to marshal"), "hash", change.Hash().String())
		}
		deps := make([]string, 0, len(change.Dependencies()))
		for _, hash := range change.Dependencies() {
			deps = append(deps, hash.String())
		}
		out = append(out, Step{
			Hash:    change.Hash().String(),
			Actor:   change.ActorID(),
			Seq:     uint64(change.ActorSeq()),
			Message: change.Message(),
			Value:   string(encoded),
			Deps:    deps,
		})
	}
	return out, nil
}

// WriteDot prints the history as a graphviz digraph, for when the graphviz render is not wanted.
func WriteDot(w io.Writer, steps []Step) error {
	var buff bytes.Buffer
	buff.WriteString("digraph \"log\" {\n")
	for _, s := range steps {
		fmt.Fprintf(&buff, "    %q [label=%q]\n", s.Hash, s.Label())
		for _, dep := range s.Deps {
			fmt.Fprintf(&buff, "    %q -> %q\n", dep, s.Hash)
		}
	}
	buff.WriteString("}\n")
	_, err := w.Write(buff.Bytes())
	return err
}

// RenderSVG lays out the history with graphviz.
func RenderSVG(w io.Writer, steps []Step) error {
	g := graphviz.New()
	defer g.Close()

	graph, err := g.Graph()
	if err != nil {
		return zerr.Wrap(err, "failed to setup graph")
	}
	defer graph.Close()

	nodeMap := make(map[string]*cgraph.Node, len(steps))
	edgeCounter := 0
	for _, s := range steps {
		n, err := graph.CreateNode(s.Hash)
		if err != nil {
			return zerr.Wrap(err, "failed to create node")
		}
		n.SetLabel(s.Label())
		nodeMap[s.Hash] = n

		for _, dep := range s.Deps {
			from, ok := nodeMap[dep]
			if !ok {
				continue
			}
			edgeCounter++
			if _, err := graph.CreateEdge(strconv.Itoa(edgeCounter), from, n); err != nil {
				return zerr.Wrap(err, "failed to create edge")
			}
		}
	}

	if err := g.Render(graph, graphviz.SVG, w); err != nil {
		return zerr.Wrap(err, "failed to render")
	}
	return nil
}

// Dump writes the saved document and its rendered history into dir as <name>.automerge and
// <name>.svg, and returns the two paths.
func Dump(dir, name string, doc *automerge.Doc, path ...any) (string, string, error) {
	docPath := filepath.Join(dir, name+".automerge")
	if err := os.WriteFile(docPath, doc.Save(), 0o644); err != nil {
		return "", "", zerr.With(zerr.Wrap(err, "failed to dump"), "path", docPath)
	}
	steps, err := History(doc, path...)
	if err != nil {
		return docPath, "", err
	}
	var buff bytes.Buffer
	if err := RenderSVG(&buff, steps); err != nil {
		return docPath, "", err
	}
	svgPath := filepath.Join(dir, name+".svg")
	if err := os.WriteFile(svgPath, buff.Bytes(), 0o644); err != nil {
		return docPath, "", zerr.With(zerr.Wrap(err, "failed to write"), "path", svgPath)
	}
	return docPath, svgPath, nil
}
