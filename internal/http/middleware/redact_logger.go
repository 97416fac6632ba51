// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access log. It never logs bodies.
// Header values and the query string are scrubbed before they are written:
//
//   - Authorization, Cookie, Set-Cookie and X-Public-Key (plus any extra
//     names in RedactOptions) are replaced with "[REDACTED]"
//   - Stellar account and secret keys are shortened to their first and last
//     four characters
//   - completion API keys (sk-...) and e-mail addresses are replaced
//
// Usage:
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Api-Key"},
//	}))
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RedactOptions configures additional header masking for RedactingLogger.
// Matching is case-insensitive.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	strkeyRE = regexp.MustCompile(`\b[GS][A-Z2-7]{55}\b`)
	apiKeyRE = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{8,}\b`)
	emailRE  = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
)

// redact scrubs keys and e-mail addresses from s.
func redact(s string) string {
	if s == "" {
		return s
	}
	s = strkeyRE.ReplaceAllStringFunc(s, func(k string) string { return k[:4] + "..." + k[len(k)-4:] })
	s = apiKeyRE.ReplaceAllString(s, "[REDACTED:api_key]")
	return emailRE.ReplaceAllString(s, "[REDACTED:email]")
}

// RedactingLogger writes one structured access log line per request through
// the request-scoped logger, at info, warn (4xx) or error (5xx) level.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
		"x-public-key":  {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		query := redact(c.Request.URL.RawQuery)
		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = redact(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()
		lg := LoggerFrom(c)
		ev := lg.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = lg.Error()
		case status >= 400:
			ev = lg.Warn()
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		ev.
			Str("path", path).
			Str("query", query).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
