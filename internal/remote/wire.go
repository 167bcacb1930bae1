package remote

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshotFrame is the binary websocket message carrying one Snapshot.
type snapshotFrame struct {
	Collection string                    `msgpack:"collection"`
	Documents  map[string]map[string]any `msgpack:"documents"`
}

func encodeSnapshot(s Snapshot) ([]byte, error) {
	frame := snapshotFrame{
		Collection: s.Collection,
		Documents:  make(map[string]map[string]any, len(s.Documents)),
	}
	for id, doc := range s.Documents {
		frame.Documents[id] = doc
	}
	data, err := msgpack.Marshal(&frame)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	var frame snapshotFrame
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	docs := make(map[string]Document, len(frame.Documents))
	for id, doc := range frame.Documents {
		docs[id] = Document(doc)
	}
	return Snapshot{Collection: frame.Collection, Documents: docs}, nil
}
