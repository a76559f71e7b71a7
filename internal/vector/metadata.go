package vector

import (
	"encoding/json"

	"github.com/docsearch/docsearch/internal/core"
)

// pointMetadata is the JSON shape persisted alongside a Point's vector:
// the chunk fields a point carries beyond the
// columns both backends already index on (chunk/document/collection id,
// path, content hash). Kept as a single blob so adding a new chunk field
// never requires a schema migration on the embedded backend.
type pointMetadata struct {
	Content     string              `json:"content"`
	ChunkType   core.ChunkType      `json:"chunk_type"`
	StartOffset int                 `json:"start_offset"`
	EndOffset   int                 `json:"end_offset"`
	ChunkIndex  int                 `json:"chunk_index"`
	ChunkTotal  int                 `json:"chunk_total"`
	Headings    []core.HeadingCrumb `json:"headings,omitempty"`

	DocTitle     string `json:"doc_title,omitempty"`
	DocRevision  string `json:"doc_revision,omitempty"`
	DocSizeBytes int64  `json:"doc_size_bytes,omitempty"`
}

func marshalMetadata(p Point) string {
	m := pointMetadata{
		Content:     p.Content,
		ChunkType:   p.ChunkType,
		StartOffset: p.StartOffset,
		EndOffset:   p.EndOffset,
		ChunkIndex:  p.ChunkIndex,
		ChunkTotal:  p.ChunkTotal,
		Headings:    p.Headings,

		DocTitle:     p.DocTitle,
		DocRevision:  p.DocRevision,
		DocSizeBytes: p.DocSizeBytes,
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(buf)
}

func unmarshalMetadataInto(p *Point, blob string) {
	if blob == "" {
		return
	}
	var m pointMetadata
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return
	}
	p.Content = m.Content
	p.ChunkType = m.ChunkType
	p.StartOffset = m.StartOffset
	p.EndOffset = m.EndOffset
	p.ChunkIndex = m.ChunkIndex
	p.ChunkTotal = m.ChunkTotal
	p.Headings = m.Headings
	p.DocTitle = m.DocTitle
	p.DocRevision = m.DocRevision
	p.DocSizeBytes = m.DocSizeBytes
}
