// Package container builds and runs generated projects as Docker containers.
//
// A Plan picks the base image from the project's files; Bundle turns the
// files plus the generated Dockerfile into a build context; a Runtime builds
// the image, runs it on a port from the PortAllocator and tracks it.
package container

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// File is one project file to ship into the image.
type File struct {
	Path    string
	Content string
	Kind    string // "file" or "folder"
}

// Stacks recognized by PlanFor.
const (
	StackNode   = "node"
	StackPython = "python"
	StackStatic = "static"
)

// Plan describes how a project is containerized.
type Plan struct {
	Stack         string
	ContainerPort int
	Dockerfile    string
}

const nodeDockerfile = `FROM node:18-alpine
WORKDIR /app
COPY package*.json ./
RUN npm install
COPY . .
EXPOSE 3000
CMD ["npm", "start"]`

const pythonDockerfile = `FROM python:3.9-slim
WORKDIR /app
COPY requirements.txt .
RUN pip install -r requirements.txt
COPY . .
EXPOSE 8000
CMD ["python", "app.py"]`

const staticDockerfile = `FROM nginx:alpine

COPY nginx.conf /etc/nginx/conf.d/default.conf

RUN mkdir -p /usr/share/nginx/html
COPY . /usr/share/nginx/html/

RUN chmod -R 755 /usr/share/nginx/html
RUN find /usr/share/nginx/html -type f -name "*.html" -exec chmod 644 {} \;
RUN find /usr/share/nginx/html -type f -name "*.css" -exec chmod 644 {} \;
RUN find /usr/share/nginx/html -type f -name "*.js" -exec chmod 644 {} \;

EXPOSE 80
CMD ["nginx", "-g", "daemon off;"]`

const nginxConf = `server {
    listen 80;
    server_name localhost;

    root /usr/share/nginx/html;
    index index.html index.htm;

    location ~* \.css$ {
        add_header Content-Type "text/css";
        add_header Cache-Control "max-age=31536000";
        add_header Access-Control-Allow-Origin "*";
        expires 1y;
    }

    location ~* \.js$ {
        add_header Content-Type "application/javascript";
        add_header Cache-Control "max-age=31536000";
        add_header Access-Control-Allow-Origin "*";
        expires 1y;
    }

    location ~* \.(png|jpg|jpeg|gif|ico|svg|woff|woff2|ttf|eot)$ {
        add_header Cache-Control "max-age=31536000";
        add_header Access-Control-Allow-Origin "*";
        expires 1y;
    }

    location ~* \.html$ {
        add_header Cache-Control "no-cache, no-store, must-revalidate";
        add_header Pragma no-cache;
        add_header Expires 0;
        add_header Content-Type "text/html; charset=utf-8";
    }

    location / {
        try_files $uri $uri/ /index.html;

        add_header Access-Control-Allow-Origin "*";
        add_header Access-Control-Allow-Methods "GET, POST, OPTIONS";
        add_header Access-Control-Allow-Headers "DNT,User-Agent,X-Requested-With,If-Modified-Since,Cache-Control,Content-Type,Range";
    }

    error_page 404 /index.html;

    add_header X-Frame-Options "SAMEORIGIN" always;
    add_header X-XSS-Protection "1; mode=block" always;
    add_header X-Content-Type-Options "nosniff" always;

    gzip on;
    gzip_vary on;
    gzip_min_length 1024;
    gzip_types text/plain text/css text/xml text/javascript application/javascript application/xml+rss application/json;
}`

const defaultIndex = `<!DOCTYPE html>
<html lang="tr">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Stelgent Site</title>
</head>
<body>
    <h1>Hoş Geldiniz!</h1>
    <p>Siteniz başarıyla deploy edildi.</p>
</body>
</html>`

// PlanFor chooses the stack: a root package.json means node, any .py file
// means python, anything else is served by nginx as a static site.
func PlanFor(files []File) Plan {
	var hasNode, hasPython bool
	for _, f := range files {
		if f.Path == "package.json" {
			hasNode = true
		}
		if strings.HasSuffix(f.Path, ".py") {
			hasPython = true
		}
	}
	switch {
	case hasNode:
		return Plan{Stack: StackNode, ContainerPort: 3000, Dockerfile: nodeDockerfile}
	case hasPython:
		return Plan{Stack: StackPython, ContainerPort: 8000, Dockerfile: pythonDockerfile}
	default:
		return Plan{Stack: StackStatic, ContainerPort: 80, Dockerfile: staticDockerfile}
	}
}

var lower = cases.Lower(language.Und)

// Slug turns a project name into something Docker accepts in image and
// container names.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range lower.String(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if len(s) > 40 {
		s = strings.TrimSuffix(s[:40], "-")
	}
	if s == "" {
		return "project"
	}
	return s
}
