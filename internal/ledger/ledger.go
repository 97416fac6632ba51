// Package ledger records project licenses on chain by invoking the mint
// function of the project NFT contract through the soroban CLI.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/stelgent-backend/internal/config"
)

// MintFunction is the contract function invoked by Mint.
const MintFunction = "mint"

// ErrNotConfigured is returned when no contract id is configured.
var ErrNotConfigured = errors.New("ledger: soroban contract id is not configured")

// MintRequest identifies what is minted to whom.
type MintRequest struct {
	To        string
	ProjectID string
	CID       string
}

// MintResult is what the contract call produced.
type MintResult struct {
	TokenID    string
	TxHash     string
	ContractID string
}

// Minter mints one license token per call.
type Minter interface {
	Mint(ctx context.Context, req MintRequest) (MintResult, error)
}

// runFunc executes a command and returns its stdout and stderr.
type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// SorobanMinter shells out to the soroban CLI.
type SorobanMinter struct {
	cliPath    string
	contractID string
	network    string
	source     string
	timeout    time.Duration

	run runFunc
}

// NewSorobanMinter returns a Minter configured from cfg.
func NewSorobanMinter(cfg config.SorobanConfig) *SorobanMinter {
	return &SorobanMinter{
		cliPath:    cfg.CLIPath,
		contractID: cfg.ContractID,
		network:    cfg.Network,
		source:     cfg.SourceIdentity,
		timeout:    cfg.Timeout,
		run:        execRun,
	}
}

// ContractID returns the configured contract.
func (m *SorobanMinter) ContractID() string { return m.contractID }

var txHashRe = regexp.MustCompile(`\b[0-9a-f]{64}\b`)

// Mint invokes `mint --to --project_id --ipfs_cid` and returns the token id
// printed by the CLI (quotes stripped) and, when the CLI logged one, the
// transaction hash.
func (m *SorobanMinter) Mint(ctx context.Context, req MintRequest) (MintResult, error) {
	if m.contractID == "" {
		return MintResult{}, ErrNotConfigured
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	args := []string{
		"contract", "invoke",
		"--id", m.contractID,
		"--source-account", m.source,
		"--network", m.network,
		"--", MintFunction,
		"--to", req.To,
		"--project_id", req.ProjectID,
		"--ipfs_cid", req.CID,
	}
	start := time.Now()
	stdout, stderr, err := m.run(ctx, m.cliPath, args...)
	log := zerolog.Ctx(ctx)
	if err != nil {
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = strings.TrimSpace(string(stdout))
		}
		log.Error().Err(err).Str("project_id", req.ProjectID).Str("detail", detail).Msg("soroban invoke failed")
		if detail != "" {
			return MintResult{}, fmt.Errorf("ledger: soroban invoke: %w: %s", err, detail)
		}
		return MintResult{}, fmt.Errorf("ledger: soroban invoke: %w", err)
	}

	res := MintResult{
		TokenID:    strings.Trim(strings.TrimSpace(string(stdout)), `"`),
		TxHash:     txHashRe.FindString(string(stderr)),
		ContractID: m.contractID,
	}
	if res.TokenID == "" {
		return MintResult{}, errors.New("ledger: soroban returned no token id")
	}
	log.Info().Str("project_id", req.ProjectID).Str("token_id", res.TokenID).Str("tx_hash", res.TxHash).
		Dur("took", time.Since(start)).Msg("license minted")
	return res, nil
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
