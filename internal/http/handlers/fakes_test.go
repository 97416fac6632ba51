package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/services"
)

type fakeAuth struct {
	users map[string]*domain.User // by public key
	setKey string
}

func (f *fakeAuth) Connect(_ context.Context, pk string) (*domain.User, bool, error) {
	if pk == "bad" {
		return nil, false, services.ErrInvalidPublicKey
	}
	if u, ok := f.users[pk]; ok {
		return u, false, nil
	}
	u := &domain.User{ID: "u-" + pk[:3], PublicKey: pk}
	f.users[pk] = u
	return u, true, nil
}

func (f *fakeAuth) VerifyFormat(pk string) (string, error) {
	if pk == "bad" {
		return "", services.ErrInvalidPublicKey
	}
	return pk, nil
}

func (f *fakeAuth) Me(_ context.Context, userID string) (*domain.User, error) {
	for _, u := range f.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return nil, services.ErrUserNotFound
}

func (f *fakeAuth) SetOpenAIKey(ctx context.Context, userID, key string) (*domain.User, error) {
	f.setKey = key
	return f.Me(ctx, userID)
}

type fakeProjects struct {
	items   []domain.Project
	updated time.Time
	listed  int
}

func (f *fakeProjects) Create(_ context.Context, userID, name, desc string) (*domain.Project, error) {
	if name == "" || len(name) > 200 {
		return nil, services.ErrInvalidProjectName
	}
	p := domain.Project{ID: "p-new", UserID: userID, Name: name, Description: desc}
	f.items = append(f.items, p)
	return &p, nil
}

func (f *fakeProjects) ListPage(_ context.Context, _ string, page, size int) ([]domain.Project, int64, error) {
	f.listed++
	start := (page - 1) * size
	if start >= len(f.items) {
		return []domain.Project{}, int64(len(f.items)), nil
	}
	end := min(start+size, len(f.items))
	return f.items[start:end], int64(len(f.items)), nil
}

func (f *fakeProjects) Stats(context.Context, string) (int64, *time.Time, error) {
	return int64(len(f.items)), &f.updated, nil
}

func (f *fakeProjects) Get(_ context.Context, _, id string) (*domain.Project, error) {
	for i := range f.items {
		if f.items[i].ID == id {
			return &f.items[i], nil
		}
	}
	return nil, services.ErrProjectNotFound
}

func (f *fakeProjects) Delete(ctx context.Context, userID, id string) error {
	_, err := f.Get(ctx, userID, id)
	return err
}

type fakeChat struct {
	res     *services.TurnResult
	err     error
	lastMsg string
}

func (f *fakeChat) Turn(_ context.Context, _, _, msg string) (*services.TurnResult, error) {
	f.lastMsg = msg
	if msg == "" {
		return nil, services.ErrEmptyMessage
	}
	return f.res, f.err
}

type fakeDeploy struct {
	status *services.ContainerStatus
	err    error
}

func (f *fakeDeploy) Deploy(context.Context, string, string) (*services.DeployResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.DeployResult{ContainerID: "c1", URL: "http://localhost:3001", Port: 3001}, nil
}

func (f *fakeDeploy) Stop(context.Context, string, string) error { return f.err }

func (f *fakeDeploy) Status(context.Context, string, string) (*services.ContainerStatus, error) {
	return f.status, f.err
}

type fakeExport struct {
	gotAddr string
	items   []services.NFTItem
	err     error
}

func (f *fakeExport) Export(context.Context, string, string) (*services.ExportResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.ExportResult{CID: "bafy1", IPFSURL: "https://ipfs.io/ipfs/bafy1"}, nil
}

func (f *fakeExport) ExportAndMint(_ context.Context, _, projectID, addr string) (*services.MintResult, error) {
	f.gotAddr = addr
	if f.err != nil {
		return nil, f.err
	}
	to := addr
	if to == "" {
		to = "GOWNER"
	}
	return &services.MintResult{
		ExportResult:   services.ExportResult{CID: "bafy1", IPFSURL: "https://ipfs.io/ipfs/bafy1"},
		TokenID:        "7",
		TxHash:         "abc",
		ContractID:     "CCONTRACT",
		StellarAddress: to,
		ProjectID:      projectID,
	}, nil
}

func (f *fakeExport) MyNFTs(context.Context, string) ([]services.NFTItem, error) {
	return f.items, f.err
}

// testRouter mounts h behind a stand-in for WalletAuth that trusts X-Test-User.
func testRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.POST("/auth/wallet/connect", h.WalletConnect)
	r.POST("/auth/wallet/verify", h.WalletVerify)

	api := r.Group("/", func(c *gin.Context) {
		c.Set("userID", c.GetHeader("X-Test-User"))
		c.Next()
	})
	api.GET("/auth/me", h.Me)
	api.PUT("/settings/openai", h.UpdateOpenAISettings)
	api.POST("/projects", h.CreateProject)
	api.GET("/projects", h.ListProjects)
	api.GET("/projects/:id", h.GetProject)
	api.DELETE("/projects/:id", h.DeleteProject)
	api.GET("/projects/:id/files", h.ListFiles)
	api.POST("/projects/:id/files", h.CreateFile)
	api.PUT("/projects/:id/files/:file_id", h.UpdateFile)
	api.DELETE("/projects/:id/files/:file_id", h.DeleteFile)
	api.GET("/projects/:id/conversations", h.ListConversations)
	api.POST("/projects/:id/chat", h.Chat)
	api.POST("/projects/:id/deploy", h.DeployProject)
	api.DELETE("/projects/:id/deploy", h.StopDeployment)
	api.GET("/projects/:id/container-status", h.ContainerStatus)
	api.POST("/projects/:id/export", h.ExportProject)
	api.POST("/projects/:id/export-and-mint", h.ExportAndMint)
	api.GET("/nfts/my", h.MyNFTs)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Test-User", "u1")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}
