// Package fileblock owns the marker-delimited text protocol used to exchange
// project files with the completion model: the system prompt that teaches
// the model the format, and the parser that reads its replies.
//
// Grammar:
//
//	[FILE: <path>]
//	<content>
//	[/FILE]
//	...
//	=== EXPLANATION ===
//	<free text>
//
// A path ending in "/" names a folder, whose content is always empty.
package fileblock

import (
	"regexp"
	"strings"
)

// Kinds mirror the stored file kinds.
const (
	KindFile   = "file"
	KindFolder = "folder"
)

// Block is one file or folder extracted from a reply.
type Block struct {
	Path    string
	Content string
	Kind    string
}

// Result is everything a Parser extracts from one reply.
type Result struct {
	// Blocks in order of appearance. Paths may repeat.
	Blocks []Block
	// Skipped holds the paths of file blocks dropped for having no content.
	Skipped []string
	// Explanation is the text after the explanation marker, or the whole
	// reply when the marker is absent.
	Explanation string
}

// Parser turns a model reply into file blocks.
type Parser interface {
	Parse(reply string) Result
}

var (
	blockRe       = regexp.MustCompile(`(?s)\[FILE:\s*([^\]]+)\](.*?)\[/FILE\]`)
	explanationRe = regexp.MustCompile(`(?is)===\s*EXPLANATION\s*===(.*)$`)
)

// MarkerParser implements Parser for the [FILE: ...] grammar.
type MarkerParser struct{}

// Parse extracts blocks with a non-greedy match, trims path and content,
// and drops non-folder blocks whose content is empty.
func (MarkerParser) Parse(reply string) Result {
	var res Result
	for _, m := range blockRe.FindAllStringSubmatch(reply, -1) {
		path := strings.TrimSpace(m[1])
		content := strings.TrimSpace(m[2])
		if path == "" {
			continue
		}
		if strings.HasSuffix(path, "/") {
			res.Blocks = append(res.Blocks, Block{Path: path, Kind: KindFolder})
			continue
		}
		if content == "" {
			res.Skipped = append(res.Skipped, path)
			continue
		}
		res.Blocks = append(res.Blocks, Block{Path: path, Content: content, Kind: KindFile})
	}

	if m := explanationRe.FindStringSubmatch(reply); m != nil {
		res.Explanation = strings.TrimSpace(m[1])
	} else {
		res.Explanation = reply
	}
	return res
}
