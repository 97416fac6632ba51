package fileblock

import (
	"strings"
	"unicode/utf8"
)

// TruncationMarker is appended to file snippets cut short in the prompt.
const TruncationMarker = "\n...TRUNCATED..."

// File is a stored file as shown to the model.
type File struct {
	Path    string
	Content string
}

// Turn is one earlier conversation message.
type Turn struct {
	// Role is "user" or "assistant".
	Role    string
	Content string
}

const promptHeader = `You are an expert full-stack developer helping to build a project.

IMPORTANT: Always respond with files in this EXACT format:

=== FILES ===
[FILE: index.html]
<!DOCTYPE html>
<html>
<head>
    <title>My Site</title>
</head>
<body>
    <h1>Hello World</h1>
</body>
</html>
[/FILE]

[FILE: styles.css]
body {
    margin: 0;
    font-family: Arial;
}
h1 {
    color: blue;
}
[/FILE]

=== EXPLANATION ===
Created basic HTML structure with CSS styling.

Rules:
1. Use [FILE: path] and [/FILE] tags for each file
2. For folders, use trailing slash: [FILE: src/]
3. If updating existing files, use the EXACT SAME path
4. Always include actual file content between tags
5. Build upon what was already created

Current files in project:
`

// SystemPrompt renders the generation instructions with the current files
// (each cut to snippetRunes) and the recent conversation embedded.
// The output is deterministic for equal inputs.
func SystemPrompt(files []File, history []Turn, snippetRunes int) string {
	var b strings.Builder
	b.WriteString(promptHeader)

	if len(files) == 0 {
		b.WriteString("No files yet")
	}
	for i, f := range files {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(f.Path)
		b.WriteString(":\n")
		b.WriteString(Snippet(f.Content, snippetRunes))
	}

	b.WriteString("\n\nPrevious conversation:\n")
	if len(history) == 0 {
		b.WriteString("This is the first message")
	}
	for i, t := range history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if t.Role == "user" {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(t.Content)
	}
	return b.String()
}

// UserPrompt wraps the user's message for the completion request.
func UserPrompt(message string) string { return "Current User Request: " + message }

// Snippet returns content unchanged when it fits in n runes, otherwise its
// first n runes followed by TruncationMarker. n <= 0 disables truncation.
func Snippet(content string, n int) string {
	if n <= 0 || utf8.RuneCountInString(content) <= n {
		return content
	}
	i, count := 0, 0
	for i = range content {
		if count == n {
			break
		}
		count++
	}
	return content[:i] + TruncationMarker
}
