package ann

import (
	"sync"

	"github.com/coder/hnsw"

	"github.com/coblo/isccidx/internal/bitcodec"
	"github.com/coblo/isccidx/internal/store"
)

// HNSWScanner is the optional, approximate replacement for CursorScanner.
// It
// represents each component's 64-bit similarity body as a 64-dimensional
// {0,1} vector and searches a per-header-byte github.com/coder/hnsw graph
// under a custom Hamming distance function, so graph distance and
// bitcodec.Distance agree exactly on any pair both sides can see.
//
// It trades the cursor scanner's exhaustiveness for sub-linear search
// time: a graph's approximate nearest-neighbor search can miss entries the
// exact scan would find, so the fkey set it returns is not guaranteed to
// be a superset once the graph is large. Callers that need exactness
// should keep CursorScanner as the default and opt into
// this backend only when approximate recall is acceptable.
type HNSWScanner struct {
	mu      sync.RWMutex
	graphs  map[byte]*hnsw.Graph[uint64]
	fkeys   map[byte]map[uint64][]byte
	nextKey map[byte]uint64
}

// NewHNSWScanner returns an empty scanner. Ingest must be called once per
// stored component to populate the graph backing MatchComponent.
func NewHNSWScanner() *HNSWScanner {
	return &HNSWScanner{
		graphs:  make(map[byte]*hnsw.Graph[uint64]),
		fkeys:   make(map[byte]map[uint64][]byte),
		nextKey: make(map[byte]uint64),
	}
}

// Ingest adds one stored component's body to the graph for its header
// byte, recording which fkey it belongs to. Index.add calls this
// alongside the normal components.Put write when the HNSW backend is
// selected.
func (h *HNSWScanner) Ingest(headerByte byte, fkey []byte, body []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	graph, ok := h.graphs[headerByte]
	if !ok {
		graph = hnsw.NewGraph[uint64]()
		graph.Distance = hammingVectorDistance
		graph.M = 16
		graph.EfSearch = 64
		graph.Ml = 0.25
		h.graphs[headerByte] = graph
		h.fkeys[headerByte] = make(map[uint64][]byte)
	}

	key := h.nextKey[headerByte]
	h.nextKey[headerByte] = key + 1

	fkeyCopy := make([]byte, len(fkey))
	copy(fkeyCopy, fkey)
	h.fkeys[headerByte][key] = fkeyCopy

	graph.Add(hnsw.MakeNode(key, bodyToVector(body)))
}

// MatchComponent implements Scanner.
func (h *HNSWScanner) MatchComponent(tx *store.Tx, subStore string, code bitcodec.Component, ct int) ([][]byte, error) {
	if code.MainType() == bitcodec.MainTypeInstance {
		return tx.GetAllDup(subStore, code.Bytes())
	}

	h.mu.RLock()
	graph, ok := h.graphs[code.HeaderByte()]
	fkeys := h.fkeys[code.HeaderByte()]
	h.mu.RUnlock()
	if !ok || graph.Len() == 0 {
		return nil, nil
	}

	vec := bodyToVector(code.Body())
	nodes := graph.Search(vec, graph.Len())

	var out [][]byte
	for _, n := range nodes {
		if int(graph.Distance(vec, n.Value)) > ct {
			continue
		}
		if fk, ok := fkeys[n.Key]; ok {
			out = append(out, fk)
		}
	}
	return out, nil
}

// bodyToVector expands a similarity body into a {0,1} vector, one
// component per bit, most significant bit first within each byte.
func bodyToVector(body []byte) []float32 {
	vec := make([]float32, len(body)*8)
	for i, b := range body {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(7-bit)) != 0 {
				vec[i*8+bit] = 1
			}
		}
	}
	return vec
}

// hammingVectorDistance counts differing components between two {0,1}
// vectors produced by bodyToVector, equal to the Hamming distance, in
// bits, between the original byte bodies.
func hammingVectorDistance(a, b []float32) float32 {
	var d float32
	for i := range a {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}
