package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	httpH "github.com/yungbote/stockscan-backend/internal/http/handlers"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts/reconcile"
	"github.com/yungbote/stockscan-backend/internal/platform/dbctx"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/services"
)

type fakeReceipts struct {
	uploaded   []byte
	filename   string
	confirmErr error
	confirmed  []types.ValidatedItem
	known      map[uuid.UUID]*types.Receipt
}

func (f *fakeReceipts) Upload(_ context.Context, in services.UploadReceiptInput) (*services.ReceiptView, error) {
	b, _ := io.ReadAll(in.Body)
	f.uploaded, f.filename = b, in.Filename
	rec := &types.Receipt{ID: uuid.New(), Status: types.ReceiptProcessing}
	return &services.ReceiptView{Receipt: rec, Job: &types.JobRun{ID: uuid.New(), Status: types.JobStatusQueued}}, nil
}

func (f *fakeReceipts) Get(_ context.Context, id uuid.UUID) (*services.ReceiptView, error) {
	rec, ok := f.known[id]
	if !ok {
		return nil, receipts.NewError(receipts.KindNotFound, "receipts.get", "receipt not found", nil)
	}
	return &services.ReceiptView{Receipt: rec}, nil
}

func (f *fakeReceipts) Reprocess(_ context.Context, id uuid.UUID) (*services.ReceiptView, error) {
	return nil, receipts.NewError(receipts.KindStateConflict, "receipts.reprocess", "only failed receipts can be reprocessed", nil)
}

func (f *fakeReceipts) Confirm(_ context.Context, id uuid.UUID, items []types.ValidatedItem) (reconcile.Result, error) {
	f.confirmed = items
	if f.confirmErr != nil {
		return reconcile.Result{}, f.confirmErr
	}
	return reconcile.Result{Transaction: &types.Transaction{ID: uuid.New(), ReceiptID: id, TotalItems: len(items)}}, nil
}

type fakeInventory struct{}

func (fakeInventory) GetTransaction(_ context.Context, id uuid.UUID) (*types.Transaction, error) {
	return nil, receipts.NewError(receipts.KindNotFound, "inventory.transaction", "transaction not found", nil)
}
func (fakeInventory) GetTransactionForReceipt(_ context.Context, id uuid.UUID) (*types.Transaction, error) {
	return &types.Transaction{ID: uuid.New(), ReceiptID: id}, nil
}
func (fakeInventory) LowStock(context.Context) ([]*types.Product, error) {
	return []*types.Product{{ID: uuid.New(), Name: "ไข่ไก่", Quantity: 2, ReorderPoint: 10}}, nil
}
func (fakeInventory) EnqueueCatalogEmbed(context.Context) (*types.JobRun, error) {
	return &types.JobRun{ID: uuid.New(), JobType: types.JobTypeCatalogEmbed}, nil
}

type fakeJobs struct {
	job *types.JobRun
}

func (f *fakeJobs) Enqueue(dbctx.Context, string, string, *uuid.UUID, map[string]any) (*types.JobRun, error) {
	return f.job, nil
}
func (f *fakeJobs) EnqueueIfIdle(dbctx.Context, string, string, uuid.UUID, map[string]any) (*types.JobRun, bool, error) {
	return f.job, true, nil
}
func (f *fakeJobs) GetByID(_ dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	if f.job != nil && f.job.ID == id {
		return f.job, nil
	}
	return nil, nil
}
func (f *fakeJobs) GetLatestForEntity(dbctx.Context, string, uuid.UUID, string) (*types.JobRun, error) {
	return f.job, nil
}
func (f *fakeJobs) ListEvents(dbctx.Context, uuid.UUID, int) ([]*types.JobRunEvent, error) {
	return []*types.JobRunEvent{}, nil
}

type routerFixture struct {
	engine   *gin.Engine
	receipts *fakeReceipts
	jobs     *fakeJobs
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	f := routerFixture{
		receipts: &fakeReceipts{known: map[uuid.UUID]*types.Receipt{}},
		jobs:     &fakeJobs{job: &types.JobRun{ID: uuid.New(), Status: types.JobStatusRunning}},
	}
	f.engine = NewRouter(RouterConfig{
		Log:              log,
		ReceiptHandler:   httpH.NewReceiptHandler(log, f.receipts, fakeInventory{}),
		InventoryHandler: httpH.NewInventoryHandler(fakeInventory{}),
		JobHandler:       httpH.NewJobHandler(f.jobs),
		HealthHandler:    httpH.NewHealthHandler(nil),
	})
	return f
}

func (f routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return env.Error.Code
}

func TestUploadReceipt(t *testing.T) {
	f := newRouterFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "receipt.jpg")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write([]byte{0xff, 0xd8, 0xff, 0xe0})
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/receipts", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := f.do(req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if f.receipts.filename != "receipt.jpg" || len(f.receipts.uploaded) != 4 {
		t.Fatalf("upload input: %q %d bytes", f.receipts.filename, len(f.receipts.uploaded))
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id header missing")
	}
}

func TestUploadWithoutImage(t *testing.T) {
	f := newRouterFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/receipts", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "missing_image" {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestErrorStatusMapping(t *testing.T) {
	f := newRouterFixture(t)
	receiptID := uuid.New()
	confirmBody := `{"items":[{"product_id":"` + uuid.NewString() + `","product_name":"น้ำปลา","quantity":2,"confidence":1}]}`

	cases := []struct {
		name       string
		method     string
		path       string
		body       string
		confirmErr error
		wantStatus int
		wantCode   string
	}{
		{"bad id", http.MethodGet, "/api/receipts/not-a-uuid", "", nil, http.StatusBadRequest, "invalid_receipt_id"},
		{"missing receipt", http.MethodGet, "/api/receipts/" + receiptID.String(), "", nil, http.StatusNotFound, "not_found"},
		{"reprocess conflict", http.MethodPost, "/api/receipts/" + receiptID.String() + "/reprocess", "", nil, http.StatusConflict, "state_conflict"},
		{"confirm bad json", http.MethodPost, "/api/receipts/" + receiptID.String() + "/confirm", "{", nil, http.StatusBadRequest, "invalid_body"},
		{"confirm conflict", http.MethodPost, "/api/receipts/" + receiptID.String() + "/confirm", confirmBody,
			receipts.NewError(receipts.KindStateConflict, "receipts.reconcile", "receipt is not pending confirmation", nil), http.StatusConflict, "state_conflict"},
		{"confirm unknown product", http.MethodPost, "/api/receipts/" + receiptID.String() + "/confirm", confirmBody,
			receipts.NewError(receipts.KindProductNotFound, "receipts.reconcile", "product not found", nil), http.StatusNotFound, "product_not_found"},
		{"confirm invalid", http.MethodPost, "/api/receipts/" + receiptID.String() + "/confirm", `{"items":[]}`,
			receipts.NewError(receipts.KindInvalidInput, "receipts.reconcile", "no items to confirm", nil), http.StatusBadRequest, "invalid_input"},
		{"internal hides cause", http.MethodPost, "/api/receipts/" + receiptID.String() + "/confirm", confirmBody,
			receipts.NewError(receipts.KindInternal, "receipts.reconcile", "", io.ErrUnexpectedEOF), http.StatusInternalServerError, "internal"},
		{"missing transaction", http.MethodGet, "/api/transactions/" + uuid.NewString(), "", nil, http.StatusNotFound, "not_found"},
		{"missing job", http.MethodGet, "/api/jobs/" + uuid.NewString(), "", nil, http.StatusNotFound, "job_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.receipts.confirmErr = tc.confirmErr
			var body io.Reader
			if tc.body != "" {
				body = strings.NewReader(tc.body)
			}
			req := httptest.NewRequest(tc.method, tc.path, body)
			req.Header.Set("Content-Type", "application/json")
			rec := f.do(req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status=%d want=%d body=%s", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if got := errorCode(t, rec); got != tc.wantCode {
				t.Fatalf("code=%q want=%q", got, tc.wantCode)
			}
			if tc.wantStatus == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "unexpected EOF") {
				t.Fatalf("internal cause leaked: %s", rec.Body.String())
			}
		})
	}
}

func TestConfirmReturnsTransaction(t *testing.T) {
	f := newRouterFixture(t)
	id := uuid.New()
	body := `{"items":[{"product_id":"` + uuid.NewString() + `","product_name":"น้ำปลา","quantity":2,"unit":"ขวด","confidence":0.95,"original_text":"น้ำปลา 2 ขวด"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/receipts/"+id.String()+"/confirm", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		Transaction struct {
			ReceiptID  uuid.UUID `json:"receipt_id"`
			TotalItems int       `json:"total_items"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Transaction.ReceiptID != id || out.Transaction.TotalItems != 1 {
		t.Fatalf("transaction: %+v", out.Transaction)
	}
	if len(f.receipts.confirmed) != 1 || f.receipts.confirmed[0].Quantity != 2 {
		t.Fatalf("items passed: %+v", f.receipts.confirmed)
	}
}

func TestReadOnlyEndpoints(t *testing.T) {
	f := newRouterFixture(t)
	for _, path := range []string{
		"/healthcheck",
		"/readyz",
		"/api/products/low-stock",
		"/api/jobs/" + f.jobs.job.ID.String(),
		"/api/jobs/" + f.jobs.job.ID.String() + "/events",
		"/api/receipts/" + uuid.NewString() + "/transaction",
	} {
		rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status=%d body=%s", path, rec.Code, rec.Body.String())
		}
	}
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/catalog/embeddings", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("catalog embeddings: %d", rec.Code)
	}
}
