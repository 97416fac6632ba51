package handlers

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/repo"
	"github.com/tbourn/stelgent-backend/internal/services"
	"github.com/tbourn/stelgent-backend/internal/wallet"
)

const walletKey = "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "handlers.db"), repo.Options{LogLevel: logger.Silent})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestRootAndHealth(t *testing.T) {
	pingErr := error(nil)
	h := New(Services{Ping: func(context.Context) error { return pingErr }})
	h.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	r := testRouter(h)

	w := do(t, r, http.MethodGet, "/", nil, nil)
	if st := decode[StatusResponse](t, w); st.Status != "ok" || st.Message != "Stelgent API is running" {
		t.Fatalf("unexpected root: %+v", st)
	}

	w = do(t, r, http.MethodGet, "/health", nil, nil)
	hr := decode[HealthResponse](t, w)
	if w.Code != http.StatusOK || hr.Status != "healthy" || hr.Database != "connected" || hr.Timestamp != "2025-01-02T03:04:05Z" {
		t.Fatalf("unexpected health: %d %+v", w.Code, hr)
	}

	pingErr = errors.New("database is closed")
	w = do(t, r, http.MethodGet, "/health", nil, nil)
	hr = decode[HealthResponse](t, w)
	if w.Code != http.StatusServiceUnavailable || hr.Status != "unhealthy" || hr.Error != "database is closed" {
		t.Fatalf("unexpected unhealthy: %d %+v", w.Code, hr)
	}
}

func TestAuthEndpoints(t *testing.T) {
	auth := &fakeAuth{users: map[string]*domain.User{}}
	r := testRouter(New(Services{Auth: auth}))

	w := do(t, r, http.MethodPost, "/auth/wallet/connect", map[string]string{"public_key": walletKey}, nil)
	conn := decode[WalletConnectResponse](t, w)
	if w.Code != http.StatusOK || conn.Token != walletKey || conn.User.StellarPublicKey != walletKey || conn.User.OpenAIAPIKey != nil {
		t.Fatalf("unexpected connect: %d %+v", w.Code, conn)
	}

	if w := do(t, r, http.MethodPost, "/auth/wallet/connect", map[string]string{"public_key": "bad"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad key should be 400, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/auth/wallet/connect", `{}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing key should be 400, got %d", w.Code)
	}

	w = do(t, r, http.MethodPost, "/auth/wallet/verify", map[string]string{"public_key": walletKey, "signature": "s", "message": "m"}, nil)
	if vr := decode[WalletVerifyResponse](t, w); w.Code != http.StatusOK || vr.PublicKey != walletKey ||
		!strings.Contains(vr.Message, "signature verification not implemented") {
		t.Fatalf("unexpected verify: %d %+v", w.Code, vr)
	}

	// the stand-in auth trusts X-Test-User
	uid := conn.User.ID
	hdr := map[string]string{"X-Test-User": uid}
	w = do(t, r, http.MethodPut, "/settings/openai", map[string]string{"openai_api_key": "sk-live-abcdefgh9876"}, hdr)
	if w.Code != http.StatusOK || auth.setKey != "sk-live-abcdefgh9876" {
		t.Fatalf("settings not stored: %d %q", w.Code, auth.setKey)
	}
	key := "sk-live-abcdefgh9876"
	auth.users[walletKey].OpenAIAPIKey = &key

	w = do(t, r, http.MethodGet, "/auth/me", nil, hdr)
	me := decode[MeResponse](t, w)
	if w.Code != http.StatusOK || me.User.ID != uid || me.User.OpenAIAPIKey == nil || *me.User.OpenAIAPIKey != "sk-...9876" {
		t.Fatalf("unexpected me: %d %+v", w.Code, me)
	}
	if strings.Contains(w.Body.String(), "abcdefgh") {
		t.Fatalf("key leaked: %s", w.Body.String())
	}

	w = do(t, r, http.MethodPut, "/settings/openai", `{"openai_api_key":null}`, hdr)
	if w.Code != http.StatusOK || auth.setKey != "" {
		t.Fatalf("null key should clear: %d %q", w.Code, auth.setKey)
	}

	if w := do(t, r, http.MethodGet, "/auth/me", nil, map[string]string{"X-Test-User": "ghost"}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown user should be 404, got %d", w.Code)
	}
}

func TestProjectEndpoints_CRUDAndETag(t *testing.T) {
	projects := &fakeProjects{updated: time.Unix(1700000000, 0)}
	r := testRouter(New(Services{Projects: projects}))

	w := do(t, r, http.MethodPost, "/projects", map[string]string{"name": "shop", "description": "d"}, nil)
	pr := decode[ProjectResponse](t, w)
	if w.Code != http.StatusCreated || pr.Message != "Project created successfully" || pr.Project.Name != "shop" {
		t.Fatalf("unexpected create: %d %+v", w.Code, pr)
	}
	if w := do(t, r, http.MethodPost, "/projects", map[string]string{"name": strings.Repeat("x", 201)}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("long name should be 400, got %d", w.Code)
	}

	w = do(t, r, http.MethodGet, "/projects?page=1&page_size=10", nil, nil)
	list := decode[ListProjectsResponse](t, w)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || len(list.Projects) != 1 || list.Pagination.Total != 1 || list.Pagination.HasNext || etag == "" {
		t.Fatalf("unexpected list: %d %+v etag=%q", w.Code, list, etag)
	}

	w = do(t, r, http.MethodGet, "/projects?page=1&page_size=10", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified || projects.listed != 1 {
		t.Fatalf("expected 304 without listing; code=%d listed=%d", w.Code, projects.listed)
	}
	// different page size means a different tag
	if w := do(t, r, http.MethodGet, "/projects?page_size=5", nil, map[string]string{"If-None-Match": etag}); w.Code != http.StatusOK {
		t.Fatalf("page size must be part of the tag, got %d", w.Code)
	}

	if w := do(t, r, http.MethodGet, "/projects/p-new", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	w = do(t, r, http.MethodGet, "/projects/nope", nil, nil)
	if er := decode[ErrorResponse](t, w); w.Code != http.StatusNotFound || er.Code != ErrCodeProjectNotFound {
		t.Fatalf("missing project: %d %+v", w.Code, er)
	}
	w = do(t, r, http.MethodDelete, "/projects/p-new", nil, nil)
	if mr := decode[MessageResponse](t, w); w.Code != http.StatusOK || mr.Message != "Project deleted successfully" {
		t.Fatalf("delete: %d %+v", w.Code, mr)
	}
}

func TestFileAndConversationEndpoints_RealServices(t *testing.T) {
	db := newHandlerDB(t)
	ctx := context.Background()
	var raw [32]byte
	u, _, err := repo.FindOrCreateUser(ctx, db, wallet.EncodePublicKey(raw))
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	p, err := repo.CreateProject(ctx, db, u.ID, "demo", "")
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}

	r := testRouter(New(Services{
		Files:         &services.FileService{DB: db},
		Conversations: &services.ConversationService{DB: db},
	}))
	hdr := map[string]string{"X-Test-User": u.ID}
	base := "/projects/" + p.ID

	w := do(t, r, http.MethodGet, base+"/files", nil, hdr)
	if lf := decode[ListFilesResponse](t, w); w.Code != http.StatusOK || lf.Files == nil || len(lf.Files) != 0 {
		t.Fatalf("empty list must be []: %d %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodPost, base+"/files", map[string]string{"path": "index.html", "content": "<html><head></head><body></body></html>"}, hdr)
	fr := decode[FileResponse](t, w)
	if w.Code != http.StatusCreated || fr.Message != "File created successfully" || fr.File.Kind != domain.KindFile {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	w = do(t, r, http.MethodPost, base+"/files", map[string]string{"path": "index.html"}, hdr)
	if er := decode[ErrorResponse](t, w); w.Code != http.StatusConflict || er.Code != ErrCodeFileExists {
		t.Fatalf("duplicate: %d %+v", w.Code, er)
	}
	w = do(t, r, http.MethodGet, base+"/files", nil, hdr)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("list with etag: %d %q", w.Code, etag)
	}
	if w := do(t, r, http.MethodGet, base+"/files", nil, map[string]string{"If-None-Match": etag}); w.Code != http.StatusNotModified {
		t.Fatalf("unchanged file list should be 304, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, base+"/files", map[string]string{"path": "../etc/passwd"}, hdr); w.Code != http.StatusBadRequest {
		t.Fatalf("traversal should be 400, got %d", w.Code)
	}
	w = do(t, r, http.MethodPost, base+"/files", map[string]string{"path": "assets", "type": "folder"}, hdr)
	if fr := decode[FileResponse](t, w); w.Code != http.StatusCreated || fr.File.Path != "assets/" {
		t.Fatalf("folder: %d %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodPut, base+"/files/"+fr.File.ID, map[string]string{"content": "<p>hi</p>"}, hdr)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "File updated successfully") {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodPut, base+"/files/"+fr.File.ID, `{}`, hdr); w.Code != http.StatusBadRequest {
		t.Fatalf("empty update should be 400, got %d", w.Code)
	}
	if w := do(t, r, http.MethodDelete, base+"/files/missing", nil, hdr); w.Code != http.StatusNotFound {
		t.Fatalf("missing file delete should be 404, got %d", w.Code)
	}
	w = do(t, r, http.MethodDelete, base+"/files/"+fr.File.ID, nil, hdr)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "File deleted successfully") {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}

	// another user's view of the project
	if w := do(t, r, http.MethodGet, base+"/files", nil, map[string]string{"X-Test-User": "intruder"}); w.Code != http.StatusNotFound {
		t.Fatalf("foreign project must be 404, got %d", w.Code)
	}

	for _, m := range []struct{ role, content string }{
		{domain.RoleUser, "make a site"},
		{domain.RoleAssistant, "done"},
	} {
		if _, err := repo.AppendMessage(ctx, db, p.ID, m.role, m.content, nil); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	w = do(t, r, http.MethodGet, base+"/conversations", nil, hdr)
	cr := decode[ListConversationsResponse](t, w)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || len(cr.Conversations) != 2 || cr.Conversations[0].Role != domain.RoleUser || etag == "" {
		t.Fatalf("conversations: %d %s", w.Code, w.Body.String())
	}
	hdr["If-None-Match"] = etag
	if w := do(t, r, http.MethodGet, base+"/conversations", nil, hdr); w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}
}

func TestChatEndpoint(t *testing.T) {
	chat := &fakeChat{}
	r := testRouter(New(Services{Chat: chat}))

	chat.res = &services.TurnResult{Clarify: true, Question: "Which pages?", Field: "pages"}
	w := do(t, r, http.MethodPost, "/projects/p1/chat", map[string]string{"message": "make\r\n\r\n\r\n\r\na site  "}, nil)
	cl := decode[ClarificationResponse](t, w)
	if w.Code != http.StatusOK || cl.Message != "clarification_requested" || cl.Field != "pages" || cl.Question != "Which pages?" {
		t.Fatalf("clarify: %d %+v", w.Code, cl)
	}
	if chat.lastMsg != "make\n\na site" {
		t.Fatalf("message not sanitized: %q", chat.lastMsg)
	}

	chat.res = &services.TurnResult{
		Response: "Built it.",
		NewFiles: []domain.ProjectFile{{ID: "f1", Path: "index.html", Content: "<html></html>", Kind: domain.KindFile}},
	}
	w = do(t, r, http.MethodPost, "/projects/p1/chat", map[string]string{"message": "go"}, nil)
	cr := decode[ChatResponse](t, w)
	if w.Code != http.StatusOK || cr.Message != "Chat response generated" || cr.Response != "Built it." ||
		len(cr.Files) != 1 || cr.Files[0].Type != "file" || cr.Files[0].Path != "index.html" {
		t.Fatalf("generated: %d %+v", w.Code, cr)
	}

	chat.res = &services.TurnResult{Response: "Updated."}
	w = do(t, r, http.MethodPost, "/projects/p1/chat", map[string]string{"message": "tweak"}, nil)
	if !strings.Contains(w.Body.String(), `"files":[]`) {
		t.Fatalf("files must serialize as []: %s", w.Body.String())
	}

	if w := do(t, r, http.MethodPost, "/projects/p1/chat", map[string]string{"message": "   "}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("blank message should be 400, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/projects/p1/chat", `{}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing message should be 400, got %d", w.Code)
	}

	chat.err = services.ErrProjectNotFound
	if w := do(t, r, http.MethodPost, "/projects/p1/chat", map[string]string{"message": "x"}, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown project should be 404, got %d", w.Code)
	}
}

func TestDeployEndpoints(t *testing.T) {
	dep := &fakeDeploy{status: &services.ContainerStatus{Deployed: false, Status: services.StatusNotDeployed}}
	r := testRouter(New(Services{Deploy: dep}))

	w := do(t, r, http.MethodPost, "/projects/p1/deploy", nil, nil)
	dr := decode[DeployResponse](t, w)
	if w.Code != http.StatusOK || dr.Message != "Project deployed successfully" || dr.Port != 3001 || dr.ContainerURL != "http://localhost:3001" || dr.ContainerID != "c1" {
		t.Fatalf("deploy: %d %+v", w.Code, dr)
	}

	w = do(t, r, http.MethodGet, "/projects/p1/container-status", nil, nil)
	if w.Code != http.StatusOK || w.Body.String() != `{"deployed":false,"status":"not_deployed"}` {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}
	dep.status = &services.ContainerStatus{Deployed: true, Status: "running", URL: "http://localhost:3001", Port: 3001}
	w = do(t, r, http.MethodGet, "/projects/p1/container-status", nil, nil)
	if sr := decode[ContainerStatusResponse](t, w); !sr.Deployed || sr.Status != "running" || sr.Port != 3001 {
		t.Fatalf("running status: %+v", sr)
	}

	if w := do(t, r, http.MethodDelete, "/projects/p1/deploy", nil, nil); w.Code != http.StatusOK ||
		!strings.Contains(w.Body.String(), "Container stopped successfully") {
		t.Fatalf("stop: %d %s", w.Code, w.Body.String())
	}

	for err, want := range map[error]int{
		services.ErrNoFiles:           http.StatusBadRequest,
		services.ErrNotDeployed:       http.StatusBadRequest,
		services.ErrDeployUnavailable: http.StatusServiceUnavailable,
		errors.New("daemon gone"):     http.StatusInternalServerError,
	} {
		dep.err = err
		if w := do(t, r, http.MethodPost, "/projects/p1/deploy", nil, nil); w.Code != want {
			t.Fatalf("%v: got %d; want %d", err, w.Code, want)
		}
	}
}

func TestExportEndpoints(t *testing.T) {
	exp := &fakeExport{}
	r := testRouter(New(Services{Export: exp}))

	w := do(t, r, http.MethodPost, "/projects/p1/export", nil, nil)
	if er := decode[ExportResponse](t, w); w.Code != http.StatusOK || er.Message != "Project exported to IPFS" || er.CID != "bafy1" {
		t.Fatalf("export: %d %+v", w.Code, er)
	}

	// body is optional
	w = do(t, r, http.MethodPost, "/projects/p1/export-and-mint", nil, nil)
	mr := decode[MintResponse](t, w)
	if w.Code != http.StatusOK || exp.gotAddr != "" || mr.NFT.To != "GOWNER" || mr.NFT.Function != "mint" ||
		mr.TokenID != "7" || mr.NFT.TokenID != "7" || mr.NFT.ProjectID != "p1" || mr.NFT.ContractID != "CCONTRACT" {
		t.Fatalf("mint: %d %+v", w.Code, mr)
	}
	w = do(t, r, http.MethodPost, "/projects/p1/export-and-mint", map[string]string{"stellar_address": walletKey}, nil)
	if mr := decode[MintResponse](t, w); w.Code != http.StatusOK || exp.gotAddr != walletKey || mr.NFT.To != walletKey {
		t.Fatalf("mint override: %d %+v", w.Code, mr)
	}
	if w := do(t, r, http.MethodPost, "/projects/p1/export-and-mint", `{not json`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body should be 400, got %d", w.Code)
	}

	w = do(t, r, http.MethodGet, "/nfts/my", nil, nil)
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("empty nfts: %d %s", w.Code, w.Body.String())
	}
	exp.items = []services.NFTItem{{ProjectID: "p1", ProjectTitle: "demo", TokenID: "7"}}
	w = do(t, r, http.MethodGet, "/nfts/my", nil, nil)
	if items := decode[[]services.NFTItem](t, w); len(items) != 1 || items[0].ProjectTitle != "demo" {
		t.Fatalf("nfts: %s", w.Body.String())
	}

	exp.err = services.ErrMintUnavailable
	if w := do(t, r, http.MethodPost, "/projects/p1/export-and-mint", nil, nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured mint should be 503, got %d", w.Code)
	}
	exp.err = services.ErrInvalidPublicKey
	if w := do(t, r, http.MethodPost, "/projects/p1/export-and-mint", map[string]string{"stellar_address": "nope"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad recipient should be 400, got %d", w.Code)
	}
}
