package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/docsearch/docsearch/internal/core"
)

var (
	// headingPattern matches ATX headings: "# Title" .. "###### Title".
	headingPattern = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+?)[ \t]*$`)

	// codeFencePattern matches a fenced code block, including its fences.
	// Fences may use ``` or ~~~.
	codeFencePattern = regexp.MustCompile("(?ms)^(```|~~~)[^\\n]*\\n.*?\\n(```|~~~)[ \\t]*$")

	// tableBlockPattern matches a GFM table: a header row, a delimiter row
	// of dashes/colons/pipes, and zero or more body rows.
	tableBlockPattern = regexp.MustCompile(`(?m)^\|.*\|[ \t]*$\n^\|[ \t:|-]+\|[ \t]*$(\n^\|.*\|[ \t]*$)*`)

	listItemPattern = regexp.MustCompile(`(?m)^[ \t]*([-*+]|\d+[.)])[ \t]+`)
)

// MarkdownChunker implements Chunker for Markdown and plain-text documents.
type MarkdownChunker struct {
	opts Options
}

var _ Chunker = (*MarkdownChunker)(nil)

// NewMarkdownChunker builds a chunker; zero-valued numeric fields in opts
// fall back to DefaultOptions. KeepCodeFences and KeepTables are used as
// given, so a zero Options protects neither fences nor tables.
func NewMarkdownChunker(opts Options) *MarkdownChunker {
	return &MarkdownChunker{opts: opts.WithDefaults()}
}

// atomicBlock is a byte span that must never be split across two chunks:
// a fenced code block or a table.
type atomicBlock struct {
	start, end int
	typ        core.ChunkType
}

// heading is one ATX heading occurrence, with its byte position in content.
type heading struct {
	pos   int // byte offset of the '#' character
	level int
	title string
}

// Chunk implements Chunker. It is deterministic: identical bytes always
// produce the identical sequence of chunk ids, types, and offsets.
func (c *MarkdownChunker) Chunk(documentID string, content []byte) ([]core.Chunk, error) {
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	atomics := c.findAtomicBlocks(text)
	headings := c.findHeadings(text, atomics)
	sections := c.splitIntoSections(text, headings)

	var out []core.Chunk
	for _, sec := range sections {
		out = append(out, c.emitSection(text, sec, atomics)...)
	}

	total := len(out)
	for i := range out {
		out[i].ID = fmt.Sprintf("%s:%05d", documentID, i)
		out[i].DocumentID = documentID
		out[i].Index = i
		out[i].Total = total
		out[i].ContentHash = contentHash(out[i].Content)
	}
	return out, nil
}

// findAtomicBlocks locates every fenced code block and table in text. These
// spans are never split across chunks.
func (c *MarkdownChunker) findAtomicBlocks(text string) []atomicBlock {
	var blocks []atomicBlock
	if c.opts.KeepCodeFences {
		for _, loc := range codeFencePattern.FindAllStringIndex(text, -1) {
			blocks = append(blocks, atomicBlock{loc[0], loc[1], core.ChunkCodeFence})
		}
	}
	if c.opts.KeepTables {
		for _, loc := range tableBlockPattern.FindAllStringIndex(text, -1) {
			blocks = append(blocks, atomicBlock{loc[0], loc[1], core.ChunkTable})
		}
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].start < blocks[j].start })
	return blocks
}

func spanHasAtomics(start, end int, atomics []atomicBlock) bool {
	for _, b := range atomics {
		if b.start >= start && b.end <= end {
			return true
		}
	}
	return false
}

func insideAtomic(pos int, atomics []atomicBlock) bool {
	for _, b := range atomics {
		if pos >= b.start && pos < b.end {
			return true
		}
	}
	return false
}

// findHeadings locates ATX headings, skipping any '#' line that falls
// inside a code fence (a shell comment inside a fence must not be mistaken
// for a heading).
func (c *MarkdownChunker) findHeadings(text string, atomics []atomicBlock) []heading {
	var hs []heading
	for _, m := range headingPattern.FindAllStringSubmatchIndex(text, -1) {
		pos := m[0]
		if insideAtomic(pos, atomics) {
			continue
		}
		level := m[3] - m[2]
		title := strings.TrimSpace(text[m[4]:m[5]])
		hs = append(hs, heading{pos: pos, level: level, title: title})
	}
	return hs
}

// section is one heading-bounded span of the document, carrying the
// breadcrumb of ancestor headings (including itself, if any) active at its
// start.
type section struct {
	start, end int
	breadcrumb []core.HeadingCrumb
}

// splitIntoSections performs the primary cut: one candidate chunk per
// heading boundary, up to MaxHeadingDepth. Headings
// deeper than that still update the breadcrumb stack but do not start a new
// section.
func (c *MarkdownChunker) splitIntoSections(text string, headings []heading) []section {
	var sections []section
	var stack []core.HeadingCrumb

	cutPositions := []int{0}
	cutBreadcrumbs := [][]core.HeadingCrumb{nil}

	for _, h := range headings {
		for len(stack) > 0 && stack[len(stack)-1].Level >= h.level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, core.HeadingCrumb{Level: h.level, Text: strings.Repeat("#", h.level) + " " + h.title})

		if h.level <= c.opts.MaxHeadingDepth {
			crumb := make([]core.HeadingCrumb, len(stack))
			copy(crumb, stack)
			cutPositions = append(cutPositions, h.pos)
			cutBreadcrumbs = append(cutBreadcrumbs, crumb)
		}
	}

	for i, start := range cutPositions {
		end := len(text)
		if i+1 < len(cutPositions) {
			end = cutPositions[i+1]
		}
		if strings.TrimSpace(text[start:end]) == "" {
			continue
		}
		sections = append(sections, section{start: start, end: end, breadcrumb: cutBreadcrumbs[i]})
	}
	return sections
}

// emitSection performs size normalization. A section within MaxTokens that
// holds no atomic block is emitted whole; any other section is split on
// paragraph boundaries with overlap, and each atomic block in it is emitted
// as its own single chunk even if it alone exceeds MaxTokens. Every emitted chunk is a
// contiguous span of the source, so Content always equals
// source[StartOffset:EndOffset].
func (c *MarkdownChunker) emitSection(text string, sec section, atomics []atomicBlock) []core.Chunk {
	body := text[sec.start:sec.end]
	if estimateTokens(body) <= c.opts.MaxTokens && !spanHasAtomics(sec.start, sec.end, atomics) {
		return []core.Chunk{c.spanChunk(text, sec.start, sec.end, sec.breadcrumb, classify(body))}
	}

	units := splitIntoUnits(text, sec.start, sec.end, atomics)

	var chunks []core.Chunk
	curStart := -1
	lastEnd := sec.start

	emit := func(start, end int, typ core.ChunkType) {
		content := strings.TrimRight(text[start:end], "\n")
		if strings.TrimSpace(content) == "" {
			return
		}
		if typ == "" {
			typ = classify(content)
		}
		chunks = append(chunks, core.Chunk{
			Content:     content,
			StartOffset: start,
			EndOffset:   start + len(content),
			Headings:    sec.breadcrumb,
			Type:        typ,
		})
	}

	for _, u := range units {
		// Atomic blocks are emitted as their own chunk, whole, even when
		// they alone exceed MaxTokens.
		if u.atomic {
			if curStart >= 0 {
				emit(curStart, lastEnd, "")
				curStart = -1
			}
			emit(u.start, u.end, u.kind)
			lastEnd = u.end
			continue
		}

		if curStart >= 0 && estimateTokens(text[curStart:u.end]) > c.opts.TargetTokens {
			emit(curStart, lastEnd, "")
			curStart = overlapStart(text, curStart, lastEnd, u.start, c.opts.OverlapTokens, atomics)
		}
		if curStart < 0 {
			curStart = u.start
		}
		lastEnd = u.end
	}
	if curStart >= 0 {
		emit(curStart, lastEnd, "")
	}

	if len(chunks) == 0 {
		return []core.Chunk{c.spanChunk(text, sec.start, sec.end, sec.breadcrumb, classify(body))}
	}
	return chunks
}

// spanChunk emits [start,end) as one chunk, trimming trailing newlines so
// EndOffset matches the trimmed Content exactly.
func (c *MarkdownChunker) spanChunk(text string, start, end int, breadcrumb []core.HeadingCrumb, typ core.ChunkType) core.Chunk {
	content := strings.TrimRight(text[start:end], "\n")
	return core.Chunk{
		Content:     content,
		StartOffset: start,
		EndOffset:   start + len(content),
		Headings:    breadcrumb,
		Type:        typ,
	}
}

// overlapStart picks where the next chunk begins: up to overlapTokens
// worth of the previous chunk's tail, aligned to a whitespace boundary so
// the overlap starts on a whole word. Falls back to newStart when no clean
// boundary exists or the cut would land inside an atomic block.
func overlapStart(text string, prevStart, prevEnd, newStart, overlapTokens int, atomics []atomicBlock) int {
	n := overlapTokens * TokensPerChar
	if n <= 0 {
		return newStart
	}
	cut := prevEnd - n
	if cut < prevStart {
		cut = prevStart
	}
	sp := strings.IndexByte(text[cut:prevEnd], ' ')
	if sp < 0 {
		return newStart
	}
	cut += sp + 1
	if cut >= newStart || insideAtomic(cut, atomics) {
		return newStart
	}
	return cut
}

type unit struct {
	start, end int
	atomic     bool
	kind       core.ChunkType
}

// splitIntoUnits breaks [start,end) into paragraph-sized units, keeping any
// atomic block (code fence, table) that falls in range intact as its own
// unit regardless of the blank-line paragraph boundaries around it.
func splitIntoUnits(text string, start, end int, atomics []atomicBlock) []unit {
	var units []unit
	pos := start
	var relevant []atomicBlock
	for _, a := range atomics {
		if a.start >= start && a.end <= end {
			relevant = append(relevant, a)
		}
	}

	for _, a := range relevant {
		if a.start > pos {
			units = append(units, paragraphUnits(text[pos:a.start], pos)...)
		}
		units = append(units, unit{start: a.start, end: a.end, atomic: true, kind: a.typ})
		pos = a.end
	}
	if pos < end {
		units = append(units, paragraphUnits(text[pos:end], pos)...)
	}
	return units
}

var blankLineSplit = regexp.MustCompile(`\n{2,}`)

// paragraphUnits splits s (a substring of the document starting at byte
// offset base) into blank-line-delimited paragraphs, preserving ordering
// and byte offsets.
func paragraphUnits(s string, base int) []unit {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var units []unit
	paras := blankLineSplit.Split(s, -1)
	offset := 0
	for _, p := range paras {
		idx := strings.Index(s[offset:], p)
		if idx < 0 {
			continue
		}
		pStart := offset + idx
		pEnd := pStart + len(p)
		offset = pEnd
		if strings.TrimSpace(p) == "" {
			continue
		}
		kind := core.ChunkProse
		if listItemPattern.MatchString(p) {
			kind = core.ChunkList
		}
		units = append(units, unit{start: base + pStart, end: base + pEnd, kind: kind})
	}
	return units
}

func classify(body string) core.ChunkType {
	trimmed := strings.TrimSpace(body)
	if headingPattern.MatchString(trimmed) {
		lines := strings.Split(trimmed, "\n")
		if len(lines) <= 2 {
			return core.ChunkHeadingBlock
		}
	}
	if listItemPattern.MatchString(trimmed) {
		return core.ChunkList
	}
	return core.ChunkProse
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
