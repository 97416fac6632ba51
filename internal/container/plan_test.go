package container

import (
	"archive/tar"
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestPlanFor(t *testing.T) {
	cases := []struct {
		files []File
		stack string
		port  int
		from  string
	}{
		{[]File{{Path: "package.json"}, {Path: "app.py"}}, StackNode, 3000, "FROM node:18-alpine"},
		{[]File{{Path: "src/app.py"}}, StackPython, 8000, "FROM python:3.9-slim"},
		{[]File{{Path: "web/package.json"}, {Path: "index.html"}}, StackStatic, 80, "FROM nginx:alpine"},
		{nil, StackStatic, 80, "FROM nginx:alpine"},
	}
	for _, tc := range cases {
		p := PlanFor(tc.files)
		if p.Stack != tc.stack || p.ContainerPort != tc.port || !strings.HasPrefix(p.Dockerfile, tc.from) {
			t.Fatalf("PlanFor(%v) = %+v", tc.files, p)
		}
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"My Game!":       "my-game",
		"  ":             "project",
		"ÇOK Oyunculu 2": "ok-oyunculu-2",
		"a__b--c":        "a-b-c",
	}
	cases[strings.Repeat("x", 60)] = strings.Repeat("x", 40)
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q) = %q; want %q", in, got, want)
		}
	}
}

func readTar(t *testing.T, b []byte) map[string]string {
	t.Helper()
	out := map[string]string{}
	tr := tar.NewReader(bytes.NewReader(b))
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("tar: %v", err)
		}
		body, _ := io.ReadAll(tr)
		out[h.Name] = string(body)
	}
}

func TestBuildContext_StaticSite(t *testing.T) {
	files := []File{
		{Path: "about.html", Content: "<html><head></head><body></body></html>", Kind: "file"},
		{Path: "css/site.css", Content: "body{}", Kind: "file"},
		{Path: "assets/", Kind: "folder"},
		{Path: "../escape.txt", Content: "x", Kind: "file"},
		{Path: "/etc/passwd", Content: "x", Kind: "file"},
	}
	b, err := BuildContext(files, PlanFor(files))
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if len(b.Skipped) != 2 {
		t.Fatalf("expected two unsafe paths skipped, got %v", b.Skipped)
	}
	got := readTar(t, b.Tar)
	for _, name := range []string{"Dockerfile", "nginx.conf", "index.html", "about.html", "css/site.css", "css/", "assets/"} {
		if _, ok := got[name]; !ok {
			t.Fatalf("%s missing from context: %v", name, got)
		}
	}
	if !strings.Contains(got["about.html"], `<link rel="stylesheet" href="css/site.css">`) {
		t.Fatalf("html not re-linked at bundle time: %q", got["about.html"])
	}
	if !strings.Contains(got["index.html"], "Stelgent Site") {
		t.Fatalf("placeholder index expected")
	}
}

func TestBuildContext_NodeKeepsFilesAsIs(t *testing.T) {
	files := []File{
		{Path: "package.json", Content: `{"scripts":{"start":"node server.js"}}`, Kind: "file"},
		{Path: "server.js", Content: "console.log(1)", Kind: "file"},
	}
	b, err := BuildContext(files, PlanFor(files))
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	got := readTar(t, b.Tar)
	if _, ok := got["nginx.conf"]; ok {
		t.Fatalf("node projects do not get nginx.conf")
	}
	if _, ok := got["index.html"]; ok {
		t.Fatalf("node projects do not get a placeholder index")
	}
	if !strings.Contains(got["Dockerfile"], "npm start") {
		t.Fatalf("unexpected Dockerfile: %q", got["Dockerfile"])
	}
}
