package container

import (
	"archive/tar"
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/tbourn/stelgent-backend/internal/htmlpatch"
)

// Bundle is an in-memory Docker build context.
type Bundle struct {
	Tar []byte
	// Skipped lists paths that would escape the build context.
	Skipped []string
}

// BuildContext assembles a tar archive holding the project files, with HTML
// documents re-linked to their stylesheets and scripts, plus the Dockerfile
// of plan. Static sites also get nginx.conf and a placeholder index.html
// when the project has none.
func BuildContext(files []File, plan Plan) (Bundle, error) {
	var out Bundle
	entries := make(map[string]string, len(files)+3)
	dirs := make(map[string]struct{})

	var siblings []string
	for _, f := range files {
		if f.Kind != "folder" {
			siblings = append(siblings, f.Path)
		}
	}

	for _, f := range files {
		clean, ok := cleanPath(f.Path)
		if !ok {
			out.Skipped = append(out.Skipped, f.Path)
			continue
		}
		if f.Kind == "folder" || strings.HasSuffix(f.Path, "/") {
			dirs[clean] = struct{}{}
			continue
		}
		content := f.Content
		if htmlpatch.IsHTML(clean) {
			content = htmlpatch.Patch(content, siblings)
		}
		entries[clean] = content
		for d := path.Dir(clean); d != "."; d = path.Dir(d) {
			dirs[d] = struct{}{}
		}
	}

	entries["Dockerfile"] = plan.Dockerfile
	if plan.Stack == StackStatic {
		entries["nginx.conf"] = nginxConf
		if _, ok := entries["index.html"]; !ok {
			entries["index.html"] = defaultIndex
		}
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now()

	for _, d := range sortedKeys(dirs) {
		if err := tw.WriteHeader(&tar.Header{
			Name: d + "/", Typeflag: tar.TypeDir, Mode: 0o755, ModTime: now,
		}); err != nil {
			return Bundle{}, fmt.Errorf("container: tar dir %s: %w", d, err)
		}
	}
	for _, name := range sortedKeys(entries) {
		body := []byte(entries[name])
		if err := tw.WriteHeader(&tar.Header{
			Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body)), ModTime: now,
		}); err != nil {
			return Bundle{}, fmt.Errorf("container: tar header %s: %w", name, err)
		}
		if _, err := tw.Write(body); err != nil {
			return Bundle{}, fmt.Errorf("container: tar write %s: %w", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return Bundle{}, fmt.Errorf("container: tar close: %w", err)
	}
	out.Tar = buf.Bytes()
	return out, nil
}

// cleanPath normalizes p relative to the context root and rejects anything
// absolute or climbing out of it.
func cleanPath(p string) (string, bool) {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	if p == "" || strings.HasPrefix(p, "/") {
		return "", false
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", false
	}
	return c, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
