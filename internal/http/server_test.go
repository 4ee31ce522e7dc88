package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cuadre/internal/core"
	"cuadre/internal/ledger"
	"cuadre/internal/ledger/memory"
	"cuadre/internal/lock"
	applog "cuadre/internal/log"
	"cuadre/internal/services"
	"cuadre/internal/session"
)

type failingLedger struct {
	*memory.Store
	appendErr error
	configErr error
}

func (f *failingLedger) AppendRow(ctx context.Context, row core.LedgerRow) (string, error) {
	if f.appendErr != nil {
		return "", f.appendErr
	}
	return f.Store.AppendRow(ctx, row)
}

func (f *failingLedger) ListConfigValues(ctx context.Context, column int) ([]string, error) {
	if f.configErr != nil {
		return nil, f.configErr
	}
	return f.Store.ListConfigValues(ctx, column)
}

// flakySessionStore fails the next saveFails session writes.
type flakySessionStore struct {
	*session.MemoryStore
	saveFails atomic.Int32
}

func (s *flakySessionStore) Save(ctx context.Context, id string, f *core.Form) error {
	if s.saveFails.Add(-1) >= 0 {
		return errors.New("session store unavailable")
	}
	s.saveFails.Store(0)
	return s.MemoryStore.Save(ctx, id, f)
}

// keyRecordingLocker remembers the keys it was asked to lock.
type keyRecordingLocker struct {
	*lock.Local
	mu   sync.Mutex
	keys []string
}

func (l *keyRecordingLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return l.Local.Lock(ctx, key)
}

func (l *keyRecordingLocker) lastKey() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.keys) == 0 {
		return ""
	}
	return l.keys[len(l.keys)-1]
}

type testEnv struct {
	server *Server
	http   *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T, gw ledger.Gateway) *testEnv {
	t.Helper()
	return newTestEnvWith(t, gw, session.NewMemoryStore(100, time.Hour), lock.NewLocal())
}

func newTestEnvWith(t *testing.T, gw ledger.Gateway, store session.Store, locker session.Locker) *testEnv {
	t.Helper()

	service := services.NewReconciliationService(gw, services.ReconciliationConfig{
		Locker: lock.NewLocal(),
		Now:    func() time.Time { return time.Date(2024, 6, 1, 20, 30, 0, 0, time.UTC) },
	})
	sessions, err := session.NewManager(store, session.ManagerConfig{
		Secret: []byte(strings.Repeat("s", 32)),
		Locker: locker,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	srv, err := NewServer(ServerConfig{
		Addr:     ":0",
		Service:  service,
		Sessions: sessions,
		Logger:   applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard}),
		Now:      func() time.Time { return time.Date(2024, 6, 1, 21, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{server: srv, http: ts, client: &http.Client{Jar: jar}}
}

type response struct {
	code    int
	body    string
	trigger string
}

func (e *testEnv) get(t *testing.T, path string) response {
	t.Helper()
	resp, err := e.client.Get(e.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return readResponse(t, resp)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) response {
	t.Helper()
	resp, err := e.client.PostForm(e.http.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return readResponse(t, resp)
}

func readResponse(t *testing.T, resp *http.Response) response {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return response{code: resp.StatusCode, body: string(body), trigger: resp.Header.Get("HX-Trigger")}
}

func (e *testEnv) state(t *testing.T) apiTotalsState {
	t.Helper()
	r := e.get(t, "/api/cuadre")
	if r.code != http.StatusOK {
		t.Fatalf("/api/cuadre status=%d", r.code)
	}
	var s apiTotalsState
	if err := json.Unmarshal([]byte(r.body), &s); err != nil {
		t.Fatalf("decode state: %v\n%s", err, r.body)
	}
	return s
}

type apiTotalsState struct {
	RecordID string    `json:"record_id"`
	Totals   apiTotals `json:"totals"`
	Balanced bool      `json:"balanced"`
	Form     struct {
		Store        string            `json:"store"`
		CardPayments []json.RawMessage `json:"card_payments"`
		Expenses     []json.RawMessage `json:"expenses"`
	} `json:"form"`
}

func header(store, date, declared string) url.Values {
	return url.Values{
		"tienda":          {store},
		"fecha":           {date},
		"factura_inicial": {"F-100"},
		"factura_final":   {"F-180"},
		"total_declarado": {declared},
	}
}

func fillBalanced(t *testing.T, e *testEnv) {
	t.Helper()
	steps := []struct {
		path string
		form url.Values
	}{
		{"/cuadre/encabezado", header("Store1", "2024-06-01", "100000")},
		{"/cuadre/tarjetas", url.Values{"valor": {"40000"}}},
		{"/cuadre/consignaciones", url.Values{"banco": {"Bancolombia"}, "valor": {"30000"}}},
		{"/cuadre/gastos", url.Values{"descripcion": {"Taxi"}, "valor": {"10000"}}},
		{"/cuadre/efectivo", url.Values{"tipo": {"Efectivo"}, "valor": {"20000"}}},
	}
	for _, s := range steps {
		if r := e.post(t, s.path, s.form); r.code != http.StatusOK {
			t.Fatalf("POST %s status=%d body=%s", s.path, r.code, r.body)
		}
	}
}

func TestIndexRendersForm(t *testing.T) {
	e := newTestEnv(t, memory.New([]string{"Store1", "Norte"}, []string{"Bancolombia"}))

	r := e.get(t, "/")
	if r.code != http.StatusOK {
		t.Fatalf("index status=%d", r.code)
	}
	for _, want := range []string{"Cuadre de caja", `<option value="Store1"`, "Bancolombia", "Reintegro Caja Menor", `value="2024-06-01"`} {
		if !strings.Contains(r.body, want) {
			t.Errorf("index missing %q", want)
		}
	}
	// 0 == 0: an empty form is balanced.
	if strings.Contains(r.body, " disabled>Guardar cuadre") {
		t.Errorf("save button should start enabled")
	}

	if r := e.get(t, "/no-such-page"); r.code != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", r.code)
	}
}

func TestSaveBalancedRecord(t *testing.T) {
	store := memory.New([]string{"Store1"}, []string{"Bancolombia"})
	e := newTestEnv(t, store)
	fillBalanced(t, e)

	before := e.state(t)
	if !before.Balanced || before.RecordID != "Store1-2024-06-01" || before.Totals.Breakdown != "100000" {
		t.Fatalf("unexpected state before save: %+v", before)
	}

	r := e.post(t, "/cuadre/guardar", nil)
	if r.code != http.StatusOK {
		t.Fatalf("save status=%d body=%s", r.code, r.body)
	}
	if !strings.Contains(r.body, "Cuadre Store1-2024-06-01 guardado") {
		t.Fatalf("missing success message: %s", r.body)
	}
	if !strings.Contains(r.trigger, `"cuadre:saved"`) || !strings.Contains(r.trigger, `"form:reset"`) {
		t.Fatalf("unexpected HX-Trigger %q", r.trigger)
	}

	rows := store.Rows()
	if len(rows) != 1 || rows[0].ID != "Store1-2024-06-01" || rows[0].DeclaredTotal != "100000" {
		t.Fatalf("unexpected ledger rows %+v", rows)
	}
	if rows[0].SavedAt != "2024-06-01 20:30:00" {
		t.Fatalf("savedAt = %q", rows[0].SavedAt)
	}

	after := e.state(t)
	if after.Form.Store != "" || len(after.Form.CardPayments) != 0 || after.Totals.Declared != "0" {
		t.Fatalf("form not cleared after save: %+v", after)
	}

	// Saving the same store and date again appends and warns.
	fillBalanced(t, e)
	r = e.post(t, "/cuadre/guardar", nil)
	if r.code != http.StatusOK || !strings.Contains(r.body, "Ya existía un registro") {
		t.Fatalf("duplicate save status=%d body=%s", r.code, r.body)
	}
	if len(store.Rows()) != 2 {
		t.Fatalf("duplicate should still be appended, rows=%d", len(store.Rows()))
	}
}

func TestSaveMismatchKeepsState(t *testing.T) {
	store := memory.New([]string{"Store1"}, nil)
	e := newTestEnv(t, store)

	e.post(t, "/cuadre/encabezado", header("Store1", "2024-06-01", "100000"))
	e.post(t, "/cuadre/tarjetas", url.Values{"valor": {"40000"}})

	page := e.get(t, "/ui/cuadre")
	if !strings.Contains(page.body, " disabled>Guardar cuadre") {
		t.Fatalf("save button should be disabled while unbalanced")
	}

	r := e.post(t, "/cuadre/guardar", nil)
	if r.code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422", r.code)
	}
	if !strings.Contains(r.body, "diferencia de $60.000") {
		t.Fatalf("missing difference in body: %s", r.body)
	}
	if len(store.Rows()) != 0 {
		t.Fatal("mismatch must not append")
	}

	s := e.state(t)
	if s.Totals.Difference != "60000" || len(s.Form.CardPayments) != 1 {
		t.Fatalf("state not preserved: %+v", s)
	}
}

func TestLineItemValidation(t *testing.T) {
	e := newTestEnv(t, memory.New([]string{"Store1"}, nil))

	tests := []struct {
		name     string
		path     string
		form     url.Values
		wantCode int
		wantBody string
	}{
		{"negative card payment", "/cuadre/tarjetas", url.Values{"valor": {"-5"}}, http.StatusOK, msgItemRejected},
		{"zero card payment", "/cuadre/tarjetas", url.Values{"valor": {"0"}}, http.StatusOK, msgItemRejected},
		{"unparseable amount", "/cuadre/tarjetas", url.Values{"valor": {"abc"}}, http.StatusUnprocessableEntity, msgInvalidAmount},
		{"thousands grouping", "/cuadre/tarjetas", url.Values{"valor": {"100.000"}}, http.StatusUnprocessableEntity, msgInvalidAmount},
		{"blank expense description", "/cuadre/gastos", url.Values{"descripcion": {"  "}, "valor": {"100"}}, http.StatusOK, msgExpenseMissing},
		{"unknown cash kind", "/cuadre/efectivo", url.Values{"tipo": {"Cheque"}, "valor": {"100"}}, http.StatusOK, msgCashRejected},
		{"bad deposit date", "/cuadre/consignaciones", url.Values{"banco": {"X"}, "valor": {"1"}, "fecha": {"ayer"}}, http.StatusUnprocessableEntity, msgInvalidDate},
		{"negative declared total", "/cuadre/encabezado", header("Store1", "2024-06-01", "-1"), http.StatusUnprocessableEntity, msgInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := e.post(t, tt.path, tt.form)
			if r.code != tt.wantCode {
				t.Fatalf("status=%d, want %d", r.code, tt.wantCode)
			}
			if !strings.Contains(r.body, tt.wantBody) {
				t.Fatalf("body missing %q: %s", tt.wantBody, r.body)
			}
		})
	}

	s := e.state(t)
	if len(s.Form.CardPayments) != 0 || len(s.Form.Expenses) != 0 || s.Totals.Breakdown != "0" || s.Form.Store != "" {
		t.Fatalf("rejected input mutated the form: %+v", s)
	}
}

func TestSaveGatewayFailureKeepsState(t *testing.T) {
	gw := &failingLedger{Store: memory.New([]string{"Store1"}, []string{"Bancolombia"}), appendErr: errors.New("quota exceeded")}
	e := newTestEnv(t, gw)
	fillBalanced(t, e)

	r := e.post(t, "/cuadre/guardar", nil)
	if r.code != http.StatusBadGateway {
		t.Fatalf("status=%d, want 502", r.code)
	}
	if !strings.Contains(r.body, "quota exceeded") {
		t.Fatalf("underlying error not surfaced: %s", r.body)
	}
	if s := e.state(t); s.Totals.Declared != "100000" || !s.Balanced {
		t.Fatalf("state lost after failed save: %+v", s)
	}

	gw.appendErr = nil
	if r := e.post(t, "/cuadre/guardar", nil); r.code != http.StatusOK {
		t.Fatalf("retry status=%d body=%s", r.code, r.body)
	}
}

func TestSaveRequiresHeader(t *testing.T) {
	store := memory.New([]string{"Store1"}, nil)
	e := newTestEnv(t, store)

	r := e.post(t, "/cuadre/guardar", nil)
	if r.code != http.StatusUnprocessableEntity || !strings.Contains(r.body, "Complete la tienda") {
		t.Fatalf("status=%d body=%s", r.code, r.body)
	}
	if len(store.Rows()) != 0 {
		t.Fatal("invalid header must not append")
	}
}

func TestResetClearsForm(t *testing.T) {
	e := newTestEnv(t, memory.New([]string{"Store1"}, nil))
	e.post(t, "/cuadre/encabezado", header("Store1", "2024-06-01", "100000"))
	e.post(t, "/cuadre/tarjetas", url.Values{"valor": {"40000"}})

	r := e.post(t, "/cuadre/limpiar", nil)
	if r.code != http.StatusOK || !strings.Contains(r.trigger, "form:reset") {
		t.Fatalf("reset status=%d trigger=%q", r.code, r.trigger)
	}
	if s := e.state(t); s.Form.Store != "" || len(s.Form.CardPayments) != 0 || s.Totals.Declared != "0" {
		t.Fatalf("form not cleared: %+v", s)
	}
}

func TestResetWaitsForSessionLock(t *testing.T) {
	locker := &keyRecordingLocker{Local: lock.NewLocal()}
	e := newTestEnvWith(t, memory.New([]string{"Store1"}, nil), session.NewMemoryStore(100, time.Hour), locker)
	e.post(t, "/cuadre/tarjetas", url.Values{"valor": {"40000"}})
	key := locker.lastKey()
	if key == "" {
		t.Fatalf("add did not take the session lock")
	}

	unlock, err := locker.Local.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	done := make(chan int, 1)
	go func() {
		resp, err := e.client.PostForm(e.http.URL+"/cuadre/limpiar", nil)
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	select {
	case <-done:
		t.Fatalf("reset finished while the session was locked")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()

	select {
	case code := <-done:
		if code != http.StatusOK {
			t.Fatalf("reset status=%d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("reset did not finish after unlock")
	}
	if s := e.state(t); len(s.Form.CardPayments) != 0 {
		t.Fatalf("form not cleared: %+v", s)
	}
}

func TestSaveSessionWriteFailure(t *testing.T) {
	ledgerStore := memory.New([]string{"Store1"}, []string{"Bancolombia"})
	sessions := &flakySessionStore{MemoryStore: session.NewMemoryStore(100, time.Hour)}
	e := newTestEnvWith(t, ledgerStore, sessions, lock.NewLocal())
	fillBalanced(t, e)

	sessions.saveFails.Store(1)
	r := e.post(t, "/cuadre/guardar", nil)
	if r.code != http.StatusOK {
		t.Fatalf("save status=%d body=%s", r.code, r.body)
	}
	if !strings.Contains(r.body, "no se pudo limpiar") || !strings.Contains(r.trigger, `"cuadre:saved"`) {
		t.Fatalf("expected saved response with a warning, body=%s trigger=%q", r.body, r.trigger)
	}
	if n := len(ledgerStore.Rows()); n != 1 {
		t.Fatalf("ledger rows = %d, want 1", n)
	}

	// The stale form was dropped, so a retry cannot append the same record again.
	if s := e.state(t); s.Form.Store != "" || len(s.Form.CardPayments) != 0 {
		t.Fatalf("form survived the save: %+v", s)
	}
	if r := e.post(t, "/cuadre/guardar", nil); r.code != http.StatusUnprocessableEntity {
		t.Fatalf("retry status=%d, want 422", r.code)
	}
	if n := len(ledgerStore.Rows()); n != 1 {
		t.Fatalf("retry appended again, ledger rows = %d", n)
	}
}

func TestRecordsLookup(t *testing.T) {
	e := newTestEnv(t, memory.New([]string{"Store1"}, []string{"Bancolombia"}))
	fillBalanced(t, e)
	e.post(t, "/cuadre/guardar", nil)

	r := e.get(t, "/registros?tienda=Store1&fecha=2024-06-01")
	if r.code != http.StatusOK {
		t.Fatalf("lookup status=%d body=%s", r.code, r.body)
	}
	for _, want := range []string{"Store1-2024-06-01", "$100.000", "$40.000", "2024-06-01 20:30:00"} {
		if !strings.Contains(r.body, want) {
			t.Errorf("lookup missing %q", want)
		}
	}

	if r := e.get(t, "/registros?tienda=Store1&fecha=2024-06-02"); r.code != http.StatusOK || !strings.Contains(r.body, "No hay cuadres") {
		t.Fatalf("empty lookup status=%d", r.code)
	}
	if r := e.get(t, "/registros?tienda=Store1&fecha=junio"); r.code != http.StatusUnprocessableEntity {
		t.Fatalf("bad date status=%d", r.code)
	}
	if r := e.get(t, "/registros"); r.code != http.StatusOK {
		t.Fatalf("search page status=%d", r.code)
	}
}

func TestConfigFailureStillRenders(t *testing.T) {
	gw := &failingLedger{Store: memory.New(nil, nil), configErr: errors.New("sheet not found")}
	e := newTestEnv(t, gw)

	r := e.get(t, "/")
	if r.code != http.StatusOK {
		t.Fatalf("status=%d", r.code)
	}
	if !strings.Contains(r.body, "No se pudo cargar la lista de tiendas") || !strings.Contains(r.body, "No se pudo cargar la lista de bancos") {
		t.Fatalf("missing placeholders: %s", r.body)
	}
	if e.server.configCache.Size() != 0 {
		t.Fatal("failed lists must not be cached")
	}
}

func TestOperationalEndpoints(t *testing.T) {
	e := newTestEnv(t, memory.New([]string{"Store1"}, nil))
	e.post(t, "/cuadre/tarjetas", url.Values{"valor": {"-1"}})

	for _, path := range []string{"/healthz", "/readyz"} {
		if r := e.get(t, path); r.code != http.StatusOK {
			t.Fatalf("%s status=%d", path, r.code)
		}
	}
	r := e.get(t, "/metrics")
	for _, want := range []string{"cuadre_items_rejected_total 1", "cuadre_saves_total 0", "http_requests_total"} {
		if !strings.Contains(r.body, want) {
			t.Errorf("metrics missing %q:\n%s", want, r.body)
		}
	}

	if r := e.get(t, "/cuadre/guardar"); r.code != http.StatusMethodNotAllowed {
		t.Fatalf("GET on a command status=%d, want 405", r.code)
	}
	if r := e.get(t, "/static/style.css"); r.code != http.StatusOK {
		t.Fatalf("static asset status=%d", r.code)
	}
}
