package snapshot

import (
	"github.com/surgedb/surgedb/internal/encoding"
	"github.com/surgedb/surgedb/pkg/distance"
	"github.com/surgedb/surgedb/pkg/errs"
	"github.com/surgedb/surgedb/pkg/hnsw"
	"github.com/surgedb/surgedb/pkg/metadata"
	"github.com/surgedb/surgedb/pkg/quantization"
)

func metricFromByte(b byte) distance.Metric { return distance.Metric(b) }

func encodeBody(s State) []byte {
	var buf []byte

	var u32 [4]byte
	var u64 [8]byte

	encoding.PutUint32(u32[:], uint32(s.Dim))
	buf = append(buf, u32[:]...)
	buf = append(buf, byte(s.Metric))
	buf = append(buf, boolByte(s.KeepOriginals))
	encoding.PutUint64(u64[:], s.Watermark)
	buf = append(buf, u64[:]...)

	buf = appendHnswParams(buf, s.HnswParams)
	encoding.PutUint32(u32[:], uint32(s.GraphMaxLayer))
	buf = append(buf, u32[:]...)
	buf = append(buf, boolByte(s.HasEntry))
	encoding.PutUint32(u32[:], s.EntryPoint)
	buf = append(buf, u32[:]...)

	buf = appendIdEntries(buf, s.IdEntries)
	buf = appendVectorPayload(buf, s)
	buf = appendGraph(buf, s.Graph)

	return buf
}

func appendHnswParams(buf []byte, p hnsw.Params) []byte {
	var u32 [4]byte
	var u64 [8]byte
	encoding.PutUint32(u32[:], uint32(p.M))
	buf = append(buf, u32[:]...)
	encoding.PutUint32(u32[:], uint32(p.M0))
	buf = append(buf, u32[:]...)
	encoding.PutUint32(u32[:], uint32(p.EfConstruction))
	buf = append(buf, u32[:]...)
	encoding.PutUint32(u32[:], uint32(p.EfSearch))
	buf = append(buf, u32[:]...)
	encoding.PutUint64(u64[:], uint64(p.Seed))
	buf = append(buf, u64[:]...)
	buf = append(buf, byte(p.Metric))
	return buf
}

func readHnswParams(b []byte, off int) (hnsw.Params, int, error) {
	if off+4*4+8+1 > len(b) {
		return hnsw.Params{}, 0, errs.New(errs.SnapshotCorrupted, "read_hnsw_params", nil, "reason", "truncated")
	}
	p := hnsw.Params{}
	p.M = int(encoding.GetUint32(b[off:]))
	off += 4
	p.M0 = int(encoding.GetUint32(b[off:]))
	off += 4
	p.EfConstruction = int(encoding.GetUint32(b[off:]))
	off += 4
	p.EfSearch = int(encoding.GetUint32(b[off:]))
	off += 4
	p.Seed = int64(encoding.GetUint64(b[off:]))
	off += 8
	p.Metric = metricFromByte(b[off])
	off++
	return p, off, nil
}

func appendIdEntries(buf []byte, entries []IdEntry) []byte {
	var u32 [4]byte
	encoding.PutUint32(u32[:], uint32(len(entries)))
	buf = append(buf, u32[:]...)
	for _, e := range entries {
		encoding.PutUint32(u32[:], e.InternalId)
		buf = append(buf, u32[:]...)
		buf = append(buf, boolByte(e.Alive))
		buf = encoding.PutString(buf, e.ExternalId)
		metaBytes, err := metadata.Marshal(e.Metadata)
		if err != nil {
			metaBytes = nil
		}
		buf = encoding.PutBytes(buf, metaBytes)
	}
	return buf
}

func readIdEntries(b []byte, off int) ([]IdEntry, int, error) {
	if off+4 > len(b) {
		return nil, 0, errs.New(errs.SnapshotCorrupted, "read_id_entries", nil, "reason", "truncated count")
	}
	n := int(encoding.GetUint32(b[off:]))
	off += 4
	out := make([]IdEntry, 0, n)
	for i := 0; i < n; i++ {
		if off+4+1 > len(b) {
			return nil, 0, errs.New(errs.SnapshotCorrupted, "read_id_entries", nil, "reason", "truncated entry")
		}
		id := encoding.GetUint32(b[off:])
		off += 4
		alive := b[off] != 0
		off++
		ext, next, err := encoding.GetString(b, off)
		if err != nil {
			return nil, 0, errs.New(errs.SnapshotCorrupted, "read_id_entries", err)
		}
		off = next
		metaBytes, next, err := encoding.GetBytes(b, off)
		if err != nil {
			return nil, 0, errs.New(errs.SnapshotCorrupted, "read_id_entries", err)
		}
		off = next
		doc, err := metadata.Unmarshal(metaBytes)
		if err != nil {
			return nil, 0, errs.New(errs.SnapshotCorrupted, "read_id_entries", err)
		}
		out = append(out, IdEntry{InternalId: id, ExternalId: ext, Metadata: doc, Alive: alive})
	}
	return out, off, nil
}

func appendVectorPayload(buf []byte, s State) []byte {
	var u32 [4]byte
	buf = append(buf, byte(s.BackendKind))
	switch s.BackendKind {
	case BackendSQ8:
		encoding.PutUint32(u32[:], uint32(len(s.SQ8)))
		buf = append(buf, u32[:]...)
		for _, v := range s.SQ8 {
			buf = append(buf, encoding.EncodeVector([]float32{v.Min, v.Max})...)
			buf = append(buf, v.Codes...)
		}
	case BackendBinary:
		encoding.PutUint32(u32[:], uint32(len(s.Binary)))
		buf = append(buf, u32[:]...)
		for _, v := range s.Binary {
			buf = append(buf, v.Bytes()...)
		}
	default: // BackendF32, BackendMmap
		encoding.PutUint32(u32[:], uint32(len(s.Vectors)))
		buf = append(buf, u32[:]...)
		for _, v := range s.Vectors {
			buf = append(buf, encoding.EncodeVector(v)...)
		}
	}
	if s.KeepOriginals && (s.BackendKind == BackendSQ8 || s.BackendKind == BackendBinary) {
		encoding.PutUint32(u32[:], uint32(len(s.Originals)))
		buf = append(buf, u32[:]...)
		for _, v := range s.Originals {
			buf = append(buf, encoding.EncodeVector(v)...)
		}
	}
	return buf
}

func readVectorPayload(b []byte, off int, dim int, keepOriginals bool) (BackendKind, [][]float32, []quantization.SQ8Vector, []quantization.BinaryVector, [][]float32, int, error) {
	if off+1 > len(b) {
		return 0, nil, nil, nil, nil, 0, errs.New(errs.SnapshotCorrupted, "read_vector_payload", nil, "reason", "truncated kind")
	}
	kind := BackendKind(b[off])
	off++
	if off+4 > len(b) {
		return 0, nil, nil, nil, nil, 0, errs.New(errs.SnapshotCorrupted, "read_vector_payload", nil, "reason", "truncated count")
	}
	n := int(encoding.GetUint32(b[off:]))
	off += 4

	var vectors [][]float32
	var sq8 []quantization.SQ8Vector
	var binary []quantization.BinaryVector

	switch kind {
	case BackendSQ8:
		sq8 = make([]quantization.SQ8Vector, 0, n)
		for i := 0; i < n; i++ {
			if off+8+dim > len(b) {
				return 0, nil, nil, nil, nil, 0, errs.New(errs.SnapshotCorrupted, "read_vector_payload", nil, "reason", "truncated sq8 row")
			}
			mm, err := encoding.GetVector(b[off:off+8], 2)
			if err != nil {
				return 0, nil, nil, nil, nil, 0, errs.New(errs.SnapshotCorrupted, "read_vector_payload", err)
			}
			off += 8
			codes := append([]byte(nil), b[off:off+dim]...)
			off += dim
			sq8 = append(sq8, quantization.SQ8Vector{Codes: codes, Min: mm[0], Max: mm[1]})
		}
	case BackendBinary:
		rowBytes := (dim + 7) / 8
		binary = make([]quantization.BinaryVector, 0, n)
		for i := 0; i < n; i++ {
			if off+rowBytes > len(b) {
				return 0, nil, nil, nil, nil, 0, errs.New(errs.SnapshotCorrupted, "read_vector_payload", nil, "reason", "truncated binary row")
			}
			binary = append(binary, quantization.BinaryFromBytes(b[off:off+rowBytes], dim))
			off += rowBytes
		}
	default:
		vectors = make([][]float32, 0, n)
		for i := 0; i < n; i++ {
			if off+dim*4 > len(b) {
				return 0, nil, nil, nil, nil, 0, errs.New(errs.SnapshotCorrupted, "read_vector_payload", nil, "reason", "truncated vector row")
			}
			v, err := encoding.GetVector(b[off:off+dim*4], dim)
			if err != nil {
				return 0, nil, nil, nil, nil, 0, errs.New(errs.SnapshotCorrupted, "read_vector_payload", err)
			}
			vectors = append(vectors, v)
			off += dim * 4
		}
	}

	var originals [][]float32
	if keepOriginals && (kind == BackendSQ8 || kind == BackendBinary) {
		if off+4 > len(b) {
			return 0, nil, nil, nil, nil, 0, errs.New(errs.SnapshotCorrupted, "read_vector_payload", nil, "reason", "truncated originals count")
		}
		on := int(encoding.GetUint32(b[off:]))
		off += 4
		originals = make([][]float32, 0, on)
		for i := 0; i < on; i++ {
			if off+dim*4 > len(b) {
				return 0, nil, nil, nil, nil, 0, errs.New(errs.SnapshotCorrupted, "read_vector_payload", nil, "reason", "truncated original row")
			}
			v, err := encoding.GetVector(b[off:off+dim*4], dim)
			if err != nil {
				return 0, nil, nil, nil, nil, 0, errs.New(errs.SnapshotCorrupted, "read_vector_payload", err)
			}
			originals = append(originals, v)
			off += dim * 4
		}
	}

	return kind, vectors, sq8, binary, originals, off, nil
}

func appendGraph(buf []byte, nodes []GraphNode) []byte {
	var u32 [4]byte
	encoding.PutUint32(u32[:], uint32(len(nodes)))
	buf = append(buf, u32[:]...)
	for _, n := range nodes {
		encoding.PutUint32(u32[:], uint32(n.MaxLayer))
		buf = append(buf, u32[:]...)
		buf = append(buf, boolByte(n.Alive))
		for l := 0; l <= n.MaxLayer; l++ {
			neigh := n.Neighbors[l]
			encoding.PutUint32(u32[:], uint32(len(neigh)))
			buf = append(buf, u32[:]...)
			for _, id := range neigh {
				encoding.PutUint32(u32[:], id)
				buf = append(buf, u32[:]...)
			}
		}
	}
	return buf
}

func readGraph(b []byte, off int) ([]GraphNode, int, error) {
	if off+4 > len(b) {
		return nil, 0, errs.New(errs.SnapshotCorrupted, "read_graph", nil, "reason", "truncated node count")
	}
	n := int(encoding.GetUint32(b[off:]))
	off += 4
	nodes := make([]GraphNode, 0, n)
	for i := 0; i < n; i++ {
		if off+4+1 > len(b) {
			return nil, 0, errs.New(errs.SnapshotCorrupted, "read_graph", nil, "reason", "truncated node header")
		}
		maxLayer := int(encoding.GetUint32(b[off:]))
		off += 4
		alive := b[off] != 0
		off++
		neighbors := make([][]uint32, maxLayer+1)
		for l := 0; l <= maxLayer; l++ {
			if off+4 > len(b) {
				return nil, 0, errs.New(errs.SnapshotCorrupted, "read_graph", nil, "reason", "truncated neighbor count")
			}
			cnt := int(encoding.GetUint32(b[off:]))
			off += 4
			list := make([]uint32, 0, cnt)
			for j := 0; j < cnt; j++ {
				if off+4 > len(b) {
					return nil, 0, errs.New(errs.SnapshotCorrupted, "read_graph", nil, "reason", "truncated neighbor id")
				}
				list = append(list, encoding.GetUint32(b[off:]))
				off += 4
			}
			neighbors[l] = list
		}
		nodes = append(nodes, GraphNode{MaxLayer: maxLayer, Alive: alive, Neighbors: neighbors})
	}
	return nodes, off, nil
}

func decodeBody(headerKind BackendKind, b []byte) (State, error) {
	off := 0
	if off+4+1+1+8 > len(b) {
		return State{}, errs.New(errs.SnapshotCorrupted, "decode_body", nil, "reason", "truncated preamble")
	}
	dim := int(encoding.GetUint32(b[off:]))
	off += 4
	metric := metricFromByte(b[off])
	off++
	keepOriginals := b[off] != 0
	off++
	watermark := encoding.GetUint64(b[off:])
	off += 8

	params, off, err := readHnswParams(b, off)
	if err != nil {
		return State{}, err
	}
	if off+4+1+4 > len(b) {
		return State{}, errs.New(errs.SnapshotCorrupted, "decode_body", nil, "reason", "truncated graph header")
	}
	graphMaxLayer := int(encoding.GetUint32(b[off:]))
	off += 4
	hasEntry := b[off] != 0
	off++
	entryPoint := encoding.GetUint32(b[off:])
	off += 4

	idEntries, off, err := readIdEntries(b, off)
	if err != nil {
		return State{}, err
	}

	kind, vectors, sq8, binary, originals, off, err := readVectorPayload(b, off, dim, keepOriginals)
	if err != nil {
		return State{}, err
	}
	if kind != headerKind {
		return State{}, errs.New(errs.SnapshotCorrupted, "decode_body", nil, "reason", "backend kind mismatch between header and body")
	}

	graph, off, err := readGraph(b, off)
	if err != nil {
		return State{}, err
	}
	_ = off

	return State{
		Dim:           dim,
		Metric:        metric,
		Watermark:     watermark,
		HnswParams:    params,
		GraphMaxLayer: graphMaxLayer,
		HasEntry:      hasEntry,
		EntryPoint:    entryPoint,
		IdEntries:     idEntries,
		Graph:         graph,
		BackendKind:   kind,
		KeepOriginals: keepOriginals,
		Vectors:       vectors,
		SQ8:           sq8,
		Binary:        binary,
		Originals:     originals,
	}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
