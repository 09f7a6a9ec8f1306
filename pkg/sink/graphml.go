package sink

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dd0wney/cluso-epinet/pkg/simerr"
	"github.com/dd0wney/cluso-epinet/pkg/snapshot"
)

const graphMLNamespace = "http://graphml.graphdrawing.org/xmlns"

type graphMLDoc struct {
	XMLName xml.Name     `xml:"graphml"`
	Xmlns   string       `xml:"xmlns,attr"`
	Keys    []graphMLKey `xml:"key"`
	Graph   graphMLGraph `xml:"graph"`
}

type graphMLKey struct {
	ID       string `xml:"id,attr"`
	For      string `xml:"for,attr"`
	AttrName string `xml:"attr.name,attr"`
	AttrType string `xml:"attr.type,attr"`
}

type graphMLGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphMLNode `xml:"node"`
	Edges       []graphMLEdge `xml:"edge"`
}

type graphMLNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphMLData `xml:"data"`
}

type graphMLEdge struct {
	ID     string        `xml:"id,attr"`
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphMLData `xml:"data"`
}

type graphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

var graphMLKeys = []graphMLKey{
	{ID: "ward", For: "node", AttrName: "ward", AttrType: "string"},
	{ID: "age", For: "node", AttrName: "age", AttrType: "int"},
	{ID: "state", For: "node", AttrName: "state", AttrType: "string"},
	{ID: "layer", For: "edge", AttrName: "layer", AttrType: "string"},
	{ID: "weight", For: "edge", AttrName: "weight", AttrType: "double"},
}

// GraphML writes one GraphML document per snapshot to
// <dir>/seed<N>/network_time<NNNN>.graphml. Count-only records are skipped.
type GraphML struct {
	dir string
}

// NewGraphML returns a GraphML sink rooted at dir.
func NewGraphML(dir string) *GraphML {
	return &GraphML{dir: dir}
}

func (g *GraphML) Name() string { return "graphml" }

// GraphMLPath returns the file a snapshot is written to.
func GraphMLPath(dir string, seed int64, t int) string {
	return filepath.Join(seedDir(dir, seed), fmt.Sprintf("network_time%04d.graphml", t))
}

// Emit writes rec.Snapshot.
func (g *GraphML) Emit(_ context.Context, seed int64, t int, rec snapshot.Record) error {
	if rec.Snapshot == nil {
		return nil
	}
	path := GraphMLPath(g.dir, seed, t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return simerr.Export("graphml").Seed(seed).Timestep(t).Wrap(err)
	}

	f, err := os.Create(path)
	if err != nil {
		return simerr.Export("graphml").Seed(seed).Timestep(t).Wrap(err)
	}
	if err := writeGraphML(f, rec.Snapshot); err != nil {
		f.Close()
		return simerr.Export("graphml").Seed(seed).Timestep(t).Context(path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return simerr.Export("graphml").Seed(seed).Timestep(t).Wrap(err)
	}
	return nil
}

func (g *GraphML) Close() error { return nil }

func writeGraphML(f *os.File, s *snapshot.Snapshot) error {
	doc := graphMLDoc{
		Xmlns: graphMLNamespace,
		Keys:  graphMLKeys,
		Graph: graphMLGraph{
			ID:          fmt.Sprintf("seed%d_t%d", s.Seed, s.Timestep),
			EdgeDefault: "undirected",
			Nodes:       make([]graphMLNode, 0, len(s.Agents)),
			Edges:       make([]graphMLEdge, 0, len(s.Edges)),
		},
	}
	for _, a := range s.Agents {
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphMLNode{
			ID: strconv.FormatInt(a.ID, 10),
			Data: []graphMLData{
				{Key: "ward", Value: a.Ward},
				{Key: "age", Value: strconv.Itoa(a.Age)},
				{Key: "state", Value: a.State.String()},
			},
		})
	}
	for _, e := range s.Edges {
		doc.Graph.Edges = append(doc.Graph.Edges, graphMLEdge{
			ID:     "e" + strconv.Itoa(e.ID),
			Source: strconv.FormatInt(e.A, 10),
			Target: strconv.FormatInt(e.B, 10),
			Data: []graphMLData{
				{Key: "layer", Value: e.Layer},
				{Key: "weight", Value: strconv.FormatFloat(e.Weight, 'g', -1, 64)},
			},
		})
	}

	if _, err := f.WriteString(xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
