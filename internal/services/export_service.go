// Package services – ExportService
//
// Exports a project snapshot to IPFS and optionally mints a license token for
// it on the ledger. One mint record is kept per project; exporting again
// overwrites it.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/ledger"
	"github.com/tbourn/stelgent-backend/internal/repo"
	"github.com/tbourn/stelgent-backend/internal/wallet"
)

// ContentStore adds content to content-addressed storage.
type ContentStore interface {
	Add(ctx context.Context, r io.Reader) (string, error)
	URL(cid string) string
}

// ExportBundle is the JSON document pinned for a project.
type ExportBundle struct {
	Project       domain.Project               `json:"project"`
	Files         []domain.ProjectFile         `json:"files"`
	Conversations []domain.ConversationMessage `json:"conversations"`
	ExportedAt    time.Time                    `json:"exported_at"`
	OwnerWallet   string                       `json:"owner_wallet"`
}

// ExportResult identifies the pinned bundle.
type ExportResult struct {
	CID     string
	IPFSURL string
}

// MintResult is an export plus the minted token.
type MintResult struct {
	ExportResult
	TokenID        string
	TxHash         string
	ContractID     string
	StellarAddress string
	ProjectID      string
}

// NFTItem is one minted project of a user.
type NFTItem struct {
	ProjectID          string    `json:"project_id"`
	ProjectTitle       string    `json:"project_title"`
	ProjectDescription string    `json:"project_description"`
	TokenID            string    `json:"token_id"`
	StellarAddress     string    `json:"stellar_address"`
	IPFSCID            string    `json:"ipfs_cid"`
	IPFSURL            string    `json:"ipfs_url"`
	ContractID         string    `json:"contract_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ExportService builds and publishes project bundles.
type ExportService struct {
	DB     *gorm.DB
	Store  ContentStore
	Minter ledger.Minter

	now func() time.Time
}

// Export pins the project bundle and returns its CID.
func (s *ExportService) Export(ctx context.Context, userID, projectID string) (*ExportResult, error) {
	ctx, span := otel.Tracer("services/ExportService").Start(ctx, "Export",
		trace.WithAttributes(attribute.String("project.id", projectID)))
	defer span.End()

	p, owner, err := s.owned(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	res, err := s.export(ctx, p, owner)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("ipfs.cid", res.CID))
	return res, nil
}

// ExportAndMint checks the recipient, pins the bundle, then mints a token for
// it to stellarAddress, or to the caller's own wallet when that is blank.
func (s *ExportService) ExportAndMint(ctx context.Context, userID, projectID, stellarAddress string) (*MintResult, error) {
	ctx, span := otel.Tracer("services/ExportService").Start(ctx, "ExportAndMint",
		trace.WithAttributes(attribute.String("project.id", projectID)))
	defer span.End()

	if s.Minter == nil {
		return nil, ErrMintUnavailable
	}
	p, owner, err := s.owned(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	// The recipient is checked before pinning so a bad address leaves nothing on IPFS.
	to := strings.TrimSpace(stellarAddress)
	if to == "" {
		to = owner.PublicKey
	}
	if to == "" {
		return nil, ErrMissingStellarAddress
	}
	if to, err = wallet.ValidatePublicKey(to); err != nil {
		return nil, ErrInvalidPublicKey
	}

	exp, err := s.export(ctx, p, owner)
	if err != nil {
		return nil, err
	}

	minted, err := s.Minter.Mint(ctx, ledger.MintRequest{To: to, ProjectID: projectID, CID: exp.CID})
	if errors.Is(err, ledger.ErrNotConfigured) {
		return nil, ErrMintUnavailable
	}
	if err != nil {
		return nil, err
	}

	_, err = repo.UpsertMint(ctx, s.DB, &domain.MintRecord{
		ProjectID:      projectID,
		UserID:         userID,
		StellarAddress: to,
		TokenID:        minted.TokenID,
		IPFSCID:        exp.CID,
		ContractID:     minted.ContractID,
		TxHash:         minted.TxHash,
	})
	if err != nil {
		return nil, fmt.Errorf("record mint: %w", err)
	}
	span.SetAttributes(attribute.String("ipfs.cid", exp.CID), attribute.String("nft.token_id", minted.TokenID))

	return &MintResult{
		ExportResult:   *exp,
		TokenID:        minted.TokenID,
		TxHash:         minted.TxHash,
		ContractID:     minted.ContractID,
		StellarAddress: to,
		ProjectID:      projectID,
	}, nil
}

// MyNFTs lists the caller's minted projects, most recently minted first.
func (s *ExportService) MyNFTs(ctx context.Context, userID string) ([]NFTItem, error) {
	mints, err := repo.ListMintsByUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(mints))
	for _, m := range mints {
		ids = append(ids, m.ProjectID)
	}
	projects, err := repo.ProjectsByID(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}

	items := make([]NFTItem, 0, len(mints))
	for _, m := range mints {
		it := NFTItem{
			ProjectID:      m.ProjectID,
			ProjectTitle:   "Unnamed project",
			TokenID:        m.TokenID,
			StellarAddress: m.StellarAddress,
			IPFSCID:        m.IPFSCID,
			ContractID:     m.ContractID,
			CreatedAt:      m.CreatedAt,
			UpdatedAt:      m.UpdatedAt,
		}
		if s.Store != nil {
			it.IPFSURL = s.Store.URL(m.IPFSCID)
		}
		if p, ok := projects[m.ProjectID]; ok {
			if p.Name != "" {
				it.ProjectTitle = p.Name
			}
			it.ProjectDescription = p.Description
		}
		items = append(items, it)
	}
	return items, nil
}

// export returns the pinned bundle and the owner's wallet key.
// owned loads the caller's project and the caller.
func (s *ExportService) owned(ctx context.Context, userID, projectID string) (*domain.Project, *domain.User, error) {
	p, err := ownedProject(ctx, s.DB, userID, projectID)
	if err != nil {
		return nil, nil, err
	}
	owner, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		return nil, nil, err
	}
	return p, owner, nil
}

func (s *ExportService) export(ctx context.Context, p *domain.Project, owner *domain.User) (*ExportResult, error) {
	files, err := repo.ListFiles(ctx, s.DB, p.ID)
	if err != nil {
		return nil, err
	}
	conv, err := repo.ListAllMessages(ctx, s.DB, p.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}
	raw, err := json.Marshal(ExportBundle{
		Project:       *p,
		Files:         files,
		Conversations: conv,
		ExportedAt:    now().UTC(),
		OwnerWallet:   owner.PublicKey,
	})
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}

	cid, err := s.Store.Add(ctx, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return &ExportResult{CID: cid, IPFSURL: s.Store.URL(cid)}, nil
}
