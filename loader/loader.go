// Package loader implements VirtualMachine, which reads a compiled
// Karma program off disk - a graph.json manifest plus one .k bytecode
// file per node - and wires the result into a graph.NodeGraph ready to
// execute. graph.json's first-declared key becomes node 0, the entry
// node; decoding the manifest into a plain map would randomize that
// order, so the document is walked token by token instead.
package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/mihirlaud/karma/graph"
	"github.com/mihirlaud/karma/vm"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrManifestMissing is returned when path/graph.json cannot be opened.
	ErrManifestMissing = errors.New("graph.json not found")
	// ErrManifestMalformed is returned when graph.json is not a valid
	// JSON object of string -> []string.
	ErrManifestMalformed = errors.New("graph.json is malformed")
	// ErrBytecodeMissing is returned when a node named in graph.json has
	// no corresponding <name>.k file.
	ErrBytecodeMissing = errors.New("node bytecode file not found")
	// ErrUnknownNeighbor is returned when an adjacency entry names a node
	// absent from graph.json's keys.
	ErrUnknownNeighbor = errors.New("neighbor node not declared in graph.json")
)

// VirtualMachine loads a Karma program directory and runs its entry node.
type VirtualMachine struct {
	path  string
	Graph *graph.NodeGraph
	out   io.Writer
}

// manifestOrder parses graph.json preserving the document order of its
// top-level keys, since encoding/json's map decoding does not. The
// first key encountered becomes node 0.
func manifestOrder(data []byte) ([]string, map[string][]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrManifestMalformed, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("%w: expected a top-level object", ErrManifestMalformed)
	}

	var order []string
	adjacency := make(map[string][]string)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrManifestMalformed, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("%w: non-string key", ErrManifestMalformed)
		}

		var neighbors []string
		if err := dec.Decode(&neighbors); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrManifestMalformed, err)
		}

		order = append(order, key)
		adjacency[key] = neighbors
	}

	return order, adjacency, nil
}

// New reads path/graph.json and every node's path/<name>.k bytecode
// file, building a graph.NodeGraph whose node 0 is graph.json's
// first-declared key. Node files are read concurrently via errgroup
// since each is an independent, side-effect-free disk read.
func New(path string, out io.Writer) (*VirtualMachine, error) {
	manifestPath := filepath.Join(path, "graph.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifestMissing, manifestPath, err)
	}

	order, adjacency, err := manifestOrder(data)
	if err != nil {
		return nil, err
	}
	glog.Infof("loader: graph.json declares %d nodes, entry=%q", len(order), firstOrEmpty(order))

	ids := make(map[string]int, len(order))
	for idx, name := range order {
		ids[name] = idx
	}

	byteCodes := make([][]byte, len(order))
	var g errgroup.Group
	for i, name := range order {
		i, name := i, name
		g.Go(func() error {
			bcPath := filepath.Join(path, name+".k")
			bc, err := os.ReadFile(bcPath)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrBytecodeMissing, bcPath, err)
			}
			byteCodes[i] = bc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ng := graph.New()
	for i, name := range order {
		m := vm.New(name, byteCodes[i], out)
		ng.AddNode(name, m)
	}
	for i, name := range order {
		for _, neighbor := range adjacency[name] {
			nidx, ok := ids[neighbor]
			if !ok {
				return nil, fmt.Errorf("%w: %q references %q", ErrUnknownNeighbor, name, neighbor)
			}
			ng.Adjacency[i] = append(ng.Adjacency[i], nidx)
		}
	}

	return &VirtualMachine{path: path, Graph: ng, out: out}, nil
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// Execute runs the entry node (index 0) to completion. Cross-node
// dispatch is not implemented: graph.Adjacency is loaded and available
// for inspection, but Step/Run never transfer control to another node.
func (v *VirtualMachine) Execute() error {
	entry := v.Graph.Entry()
	if entry == nil {
		return errors.New("loader: graph has no nodes")
	}
	glog.Infof("loader: executing entry node %q", entry.Name)
	return entry.Run()
}
