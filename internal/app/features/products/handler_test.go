package products

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/productcatalog/httputil"
	"github.com/dalemusser/productcatalog/internal/app/store/catalogdb"
	productstore "github.com/dalemusser/productcatalog/internal/app/store/products"
	"github.com/dalemusser/productcatalog/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeStore keeps products in memory and records the last call's inputs.
type fakeStore struct {
	items    map[string]models.Product
	lastList productstore.ListOptions
	err      error
}

func newFakeStore(ps ...models.Product) *fakeStore {
	fs := &fakeStore{items: map[string]models.Product{}}
	for _, p := range ps {
		fs.items[p.ID.Hex()] = p
	}
	return fs
}

func (f *fakeStore) Create(_ context.Context, p models.Product) (models.Product, error) {
	if f.err != nil {
		return models.Product{}, f.err
	}
	p.ID = primitive.NewObjectID()
	f.items[p.ID.Hex()] = p
	return p, nil
}

func (f *fakeStore) Get(_ context.Context, id string) (models.Product, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return models.Product{}, productstore.ErrInvalidID
	}
	p, ok := f.items[id]
	if !ok {
		return models.Product{}, productstore.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) List(_ context.Context, opts productstore.ListOptions) (productstore.Page, error) {
	f.lastList = opts
	if f.err != nil {
		return productstore.Page{}, f.err
	}
	page := productstore.Page{Items: []models.Product{}}
	for _, p := range f.items {
		page.Items = append(page.Items, p)
	}
	return page, nil
}

func (f *fakeStore) Update(_ context.Context, id string, p models.Product) (models.Product, error) {
	if _, ok := f.items[id]; !ok {
		return models.Product{}, productstore.ErrNotFound
	}
	p.ID, _ = primitive.ObjectIDFromHex(id)
	f.items[id] = p
	return p, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return productstore.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeStore) All(context.Context) ([]models.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []models.Product{}
	for _, p := range f.items {
		out = append(out, p)
	}
	return out, nil
}

func merlot() models.Product {
	return models.Product{
		ID:           primitive.NewObjectID(),
		Name:         "Merlot",
		Position:     "Aisle 7, bin 4",
		Type:         models.ProductTypeWine,
		Description:  "Soft, plummy red.",
		SellingPrice: 12.5,
	}
}

func newRouter(store productStore, apiKey string) http.Handler {
	r := chi.NewRouter()
	r.Mount("/products", NewHandler(store, apiKey, 20, nil).Routes())
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const validBody = `{"name":"Hoppy Hour IPA","position":"Aisle 3, shelf 2","type":"beer","description":"Hop-forward.","selling_price":4.99}`

func TestCreate(t *testing.T) {
	store := newFakeStore()
	h := newRouter(store, "")

	rec := do(t, h, http.MethodPost, "/products", validBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var got models.Product
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID.IsZero() || got.Name != "Hoppy Hour IPA" || got.SellingPrice != 4.99 {
		t.Errorf("created = %+v", got)
	}
	if loc := rec.Header().Get("Location"); loc != "/products/"+got.ID.Hex() {
		t.Errorf("Location = %q", loc)
	}
	if len(store.items) != 1 {
		t.Errorf("store has %d items", len(store.items))
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantFields []string
	}{
		{"missing price", `{"name":"Cola","position":"Fridge 1","type":"softdrink","description":"Fizzy."}`, []string{"selling_price"}},
		{"bad enum and short position", `{"name":"Cola","position":"F1","type":"soda","description":"Fizzy.","selling_price":1}`, []string{"position", "type"}},
		{"unknown field", `{"name":"Cola","position":"Fridge 1","type":"softdrink","description":"Fizzy.","selling_price":1,"foo":"bar"}`, []string{"foo"}},
		{"price as string", `{"name":"Cola","position":"Fridge 1","type":"softdrink","description":"Fizzy.","selling_price":"1"}`, []string{"selling_price"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			rec := do(t, newRouter(store, ""), http.MethodPost, "/products", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			var resp struct {
				Error   string                `json:"error"`
				Details []catalogdb.Violation `json:"details"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Error != "validation_failed" {
				t.Errorf("error = %q", resp.Error)
			}
			var fields []string
			for _, v := range resp.Details {
				fields = append(fields, v.Field)
			}
			if strings.Join(fields, ",") != strings.Join(tt.wantFields, ",") {
				t.Errorf("violation fields = %v, want %v", fields, tt.wantFields)
			}
			if len(store.items) != 0 {
				t.Error("invalid product reached the store")
			}
		})
	}
}

func TestCreate_BadJSON(t *testing.T) {
	for _, body := range []string{`{`, `[1,2]`, `null`, `{"a":1}{"b":2}`} {
		rec := do(t, newRouter(newFakeStore(), ""), http.MethodPost, "/products", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d", body, rec.Code)
		}
	}
}

func TestMutations_RequireAPIKey(t *testing.T) {
	p := merlot()
	store := newFakeStore(p)
	h := newRouter(store, "s3cret")

	if rec := do(t, h, http.MethodPost, "/products", validBody); rec.Code != http.StatusUnauthorized {
		t.Errorf("POST without key = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/products/"+p.ID.Hex(), ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("DELETE without key = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/products/"+p.ID.Hex(), ""); rec.Code != http.StatusOK {
		t.Errorf("GET should stay public, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/products", validBody, "X-API-Key", "s3cret"); rec.Code != http.StatusCreated {
		t.Errorf("POST with key = %d", rec.Code)
	}
}

func TestGetUpdateDelete(t *testing.T) {
	p := merlot()
	store := newFakeStore(p)
	h := newRouter(store, "")
	id := p.ID.Hex()
	missing := primitive.NewObjectID().Hex()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"get", http.MethodGet, "/products/" + id, "", http.StatusOK},
		{"get bad id", http.MethodGet, "/products/xyz", "", http.StatusBadRequest},
		{"get missing", http.MethodGet, "/products/" + missing, "", http.StatusNotFound},
		{"update", http.MethodPut, "/products/" + id, validBody, http.StatusOK},
		{"update missing", http.MethodPut, "/products/" + missing, validBody, http.StatusNotFound},
		{"update invalid", http.MethodPut, "/products/" + id, `{"name":"x"}`, http.StatusBadRequest},
		{"delete", http.MethodDelete, "/products/" + id, "", http.StatusNoContent},
		{"delete again", http.MethodDelete, "/products/" + id, "", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, tt.path, tt.body)
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d (body %s)", tt.name, rec.Code, tt.want, rec.Body.String())
		}
	}
}

func TestList(t *testing.T) {
	store := newFakeStore(merlot())
	h := newRouter(store, "")

	rec := do(t, h, http.MethodGet, "/products?type=wine&q=mer&after=abc&limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := productstore.ListOptions{Type: models.ProductTypeWine, Query: "mer", After: "abc", Limit: 5}
	if store.lastList != want {
		t.Errorf("ListOptions = %+v, want %+v", store.lastList, want)
	}
	var page productstore.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil || len(page.Items) != 1 {
		t.Errorf("page = %+v, err %v", page, err)
	}

	do(t, h, http.MethodGet, "/products", "")
	if store.lastList.Limit != 20 {
		t.Errorf("default limit = %d, want configured page size 20", store.lastList.Limit)
	}

	if rec := do(t, h, http.MethodGet, "/products?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}

	store.err = productstore.ErrBadCursor
	if rec := do(t, h, http.MethodGet, "/products?after=%25", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad cursor status = %d", rec.Code)
	}

	store.err = errors.New("socket closed")
	rec = do(t, h, http.MethodGet, "/products", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("store failure status = %d", rec.Code)
	}
	var env httputil.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil || strings.Contains(env.Message, "socket") {
		t.Errorf("internal error leaked or malformed: %s", rec.Body.String())
	}
}

func TestExportCSV(t *testing.T) {
	p := merlot()
	rec := do(t, newRouter(newFakeStore(p), ""), http.MethodGet, "/products/export.csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want header + 1", len(records))
	}
	want := []string{p.ID.Hex(), "Merlot", "Aisle 7, bin 4", "wine", "Soft, plummy red.", "12.50"}
	if strings.Join(records[1], "|") != strings.Join(want, "|") {
		t.Errorf("row = %v, want %v", records[1], want)
	}
}

func TestExportXLSX(t *testing.T) {
	p := merlot()
	rec := do(t, newRouter(newFakeStore(p), ""), http.MethodGet, "/products/export.xlsx", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxType {
		t.Errorf("Content-Type = %q", ct)
	}

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0][1] != "Name" || rows[1][1] != "Merlot" || rows[1][0] != p.ID.Hex() {
		t.Errorf("rows = %v", rows)
	}
}
