package parse

import (
	"path"
	"regexp"
	"strings"
)

// fileBlockMarker matches one file header line in multi-file LLM output,
// e.g. "### FILE: output_sourcecode/front/index.html" or "### 文件：...".
var fileBlockMarker = regexp.MustCompile(`(?i)^###\s*(?:FILE|文件)\s*[:：]\s*(.+)$`)

// FileBlock is one file carved out of a multi-file response, in the order it
// appeared.
type FileBlock struct {
	Path    string
	Content string
}

// ParseFileBlocks splits content on "### FILE:" marker lines. Text before the
// first marker is discarded. Each block's content is trimmed of surrounding
// blank lines but keeps interior whitespace intact.
func ParseFileBlocks(content string) []FileBlock {
	var blocks []FileBlock
	var current *FileBlock
	var buf []string

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.Trim(strings.Join(buf, "\n"), "\n")
		blocks = append(blocks, *current)
		current = nil
		buf = nil
	}

	for _, line := range strings.Split(content, "\n") {
		if m := fileBlockMarker.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			current = &FileBlock{Path: strings.TrimSpace(m[1])}
			continue
		}
		buf = append(buf, line)
	}
	flush()
	return blocks
}

// SerializeFileBlocks renders blocks back into the marker format, used when a
// generated file set is re-fed to the model for revision.
func SerializeFileBlocks(blocks []FileBlock) string {
	var b strings.Builder
	for i, block := range blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("### FILE: ")
		b.WriteString(block.Path)
		b.WriteString("\n")
		b.WriteString(block.Content)
	}
	return b.String()
}

// SafeRelPath normalizes a model-proposed file path and reports whether it is
// safe to write under a workspace root. Absolute paths and any path escaping
// the root are rejected; the caller skips them silently.
func SafeRelPath(raw string) (string, bool) {
	p := strings.TrimSpace(raw)
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", false
	}
	if strings.Contains(p, "\\") {
		p = strings.ReplaceAll(p, "\\", "/")
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", false
		}
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}
