// Package ipfs publishes export bundles to an IPFS node over its HTTP API.
package ipfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/tbourn/stelgent-backend/internal/config"
)

const requestTimeout = 2 * time.Minute

// Client adds content to an IPFS node and builds gateway links for it.
type Client struct {
	sh      *shell.Shell
	gateway string
}

// New returns a Client for the node at cfg.APIURL ("host:port" or a URL).
func New(cfg config.IPFSConfig) *Client {
	sh := shell.NewShellWithClient(cfg.APIURL, &http.Client{Timeout: requestTimeout})
	return &Client{sh: sh, gateway: strings.TrimRight(cfg.GatewayURL, "/")}
}

type addResult struct {
	cid string
	err error
}

// Add pins the content of r and returns its CID.
func (c *Client) Add(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	done := make(chan addResult, 1)
	go func() {
		cid, err := c.sh.Add(r, shell.Pin(true))
		done <- addResult{cid: cid, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("ipfs: add: %w", res.err)
		}
		return res.cid, nil
	}
}

// URL returns the public gateway link for cid.
func (c *Client) URL(cid string) string { return c.gateway + "/" + cid }
