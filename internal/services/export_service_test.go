package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/ledger"
	"github.com/tbourn/stelgent-backend/internal/repo"
)

type memStore struct {
	added [][]byte
	err   error
}

func (m *memStore) Add(_ context.Context, r io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.added = append(m.added, b)
	return fmt.Sprintf("bafy%d", len(m.added)), nil
}

func (m *memStore) URL(cid string) string { return "https://gw.test/ipfs/" + cid }

type fakeMinter struct {
	reqs []ledger.MintRequest
	err  error
}

func (f *fakeMinter) Mint(_ context.Context, req ledger.MintRequest) (ledger.MintResult, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return ledger.MintResult{}, f.err
	}
	return ledger.MintResult{TokenID: "42", TxHash: "ab12", ContractID: "CCONTRACT"}, nil
}

func TestExportService_Export(t *testing.T) {
	db := newSvcDB(t)
	u := seedUser(t, db, 1)
	p := seedProject(t, db, u.ID)
	ctx := context.Background()
	seedFile(t, db, p.ID, "index.html", "<p>hi</p>")
	if _, err := repo.AppendMessage(ctx, db, p.ID, domain.RoleUser, "build it", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := &memStore{}
	s := &ExportService{DB: db, Store: store, now: func() time.Time { return fixed }}

	res, err := s.Export(ctx, u.ID, p.ID)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.CID != "bafy1" || res.IPFSURL != "https://gw.test/ipfs/bafy1" {
		t.Fatalf("unexpected result %+v", res)
	}

	var bundle ExportBundle
	if err := json.Unmarshal(store.added[0], &bundle); err != nil {
		t.Fatalf("bundle is not JSON: %v", err)
	}
	if bundle.Project.ID != p.ID || len(bundle.Files) != 1 || len(bundle.Conversations) != 1 ||
		bundle.OwnerWallet != u.PublicKey || !bundle.ExportedAt.Equal(fixed) {
		t.Fatalf("unexpected bundle %+v", bundle)
	}

	store.err = errors.New("node down")
	if _, err := s.Export(ctx, u.ID, p.ID); err == nil {
		t.Fatalf("expected storage error")
	}
	other := seedUser(t, db, 2)
	if _, err := s.Export(ctx, other.ID, p.ID); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("foreign project: expected ErrProjectNotFound, got %v", err)
	}
}

func TestExportService_ExportAndMint(t *testing.T) {
	db := newSvcDB(t)
	u := seedUser(t, db, 1)
	p := seedProject(t, db, u.ID)
	ctx := context.Background()
	minter := &fakeMinter{}
	s := &ExportService{DB: db, Store: &memStore{}, Minter: minter}

	res, err := s.ExportAndMint(ctx, u.ID, p.ID, "")
	if err != nil {
		t.Fatalf("ExportAndMint: %v", err)
	}
	if res.TokenID != "42" || res.TxHash != "ab12" || res.ContractID != "CCONTRACT" || res.StellarAddress != u.PublicKey {
		t.Fatalf("unexpected result %+v", res)
	}
	if minter.reqs[0].To != u.PublicKey || minter.reqs[0].ProjectID != p.ID || minter.reqs[0].CID != res.CID {
		t.Fatalf("unexpected mint request %+v", minter.reqs[0])
	}

	// Minting again to another wallet overwrites the single record.
	recipient := testKey(50)
	if _, err := s.ExportAndMint(ctx, u.ID, p.ID, recipient); err != nil {
		t.Fatalf("re-mint: %v", err)
	}
	items, err := s.MyNFTs(ctx, u.ID)
	if err != nil || len(items) != 1 {
		t.Fatalf("MyNFTs: %+v %v", items, err)
	}
	it := items[0]
	if it.StellarAddress != recipient || it.ProjectTitle != "demo" || it.ProjectDescription != "a demo project" ||
		it.IPFSCID != "bafy2" || it.IPFSURL != "https://gw.test/ipfs/bafy2" {
		t.Fatalf("unexpected nft item %+v", it)
	}

	if _, err := s.ExportAndMint(ctx, u.ID, p.ID, "GNOTAKEY"); !errors.Is(err, ErrInvalidPublicKey) {
		t.Fatalf("bad recipient: expected ErrInvalidPublicKey, got %v", err)
	}
	minter.err = ledger.ErrNotConfigured
	if _, err := s.ExportAndMint(ctx, u.ID, p.ID, ""); !errors.Is(err, ErrMintUnavailable) {
		t.Fatalf("unconfigured contract: expected ErrMintUnavailable, got %v", err)
	}
	if _, err := (&ExportService{DB: db, Store: &memStore{}}).ExportAndMint(ctx, u.ID, p.ID, ""); !errors.Is(err, ErrMintUnavailable) {
		t.Fatalf("no minter: expected ErrMintUnavailable, got %v", err)
	}
}

func TestExportService_ExportAndMint_BadRecipientPinsNothing(t *testing.T) {
	db := newSvcDB(t)
	u := seedUser(t, db, 1)
	p := seedProject(t, db, u.ID)
	store := &memStore{}
	minter := &fakeMinter{}
	s := &ExportService{DB: db, Store: store, Minter: minter}

	for _, addr := range []string{"GNOTAKEY", "not a wallet", testKey(60)[:20]} {
		if _, err := s.ExportAndMint(context.Background(), u.ID, p.ID, addr); !errors.Is(err, ErrInvalidPublicKey) {
			t.Fatalf("%q: expected ErrInvalidPublicKey, got %v", addr, err)
		}
	}
	if len(store.added) != 0 || len(minter.reqs) != 0 {
		t.Fatalf("rejected recipients must not pin or mint: pinned=%d minted=%d", len(store.added), len(minter.reqs))
	}
	if _, err := repo.GetMintByProject(context.Background(), db, p.ID); err == nil {
		t.Fatalf("no mint record expected")
	}
}

func TestExportService_MyNFTs_UnknownProjectTitle(t *testing.T) {
	db := newSvcDB(t)
	u := seedUser(t, db, 1)
	p := seedProject(t, db, u.ID)
	ctx := context.Background()
	if _, err := repo.UpsertMint(ctx, db, &domain.MintRecord{
		ProjectID: p.ID, UserID: u.ID, StellarAddress: u.PublicKey, TokenID: "1", IPFSCID: "cid",
	}); err != nil {
		t.Fatalf("seed mint: %v", err)
	}
	db.Model(&domain.Project{}).Where("id = ?", p.ID).Update("name", "")

	items, err := (&ExportService{DB: db, Store: &memStore{}}).MyNFTs(ctx, u.ID)
	if err != nil || len(items) != 1 || items[0].ProjectTitle != "Unnamed project" {
		t.Fatalf("expected fallback title, got %+v %v", items, err)
	}
}
