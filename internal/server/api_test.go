package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/afroash/airmon/internal/aggregate"
	"github.com/afroash/airmon/internal/models"
	"github.com/afroash/airmon/internal/storage"
)

const testToken = "test-token"

func newTestServer(t *testing.T) (*httptest.Server, storage.Store) {
	t.Helper()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	engine := aggregate.NewEngine(store)
	api := NewAPIHandler(store, engine, nil, zerolog.Nop())
	router := NewRouter(api, nil, testToken, nil, zerolog.Nop())

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, store
}

func postReading(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/readings", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestIngest_ValidPayloadReturns201WithRowID(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postReading(t, ts, `{"temperature":23.0,"humidity":80.1,"gas_raw":197,"gas_digital":true}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var out models.IngestResponse
	decodeJSON(t, resp, &out)
	if out.RowID < 1 {
		t.Errorf("row_id = %d, want >= 1", out.RowID)
	}
}

func TestIngest_InvalidPayloadsRejectedWithoutStoreMutation(t *testing.T) {
	ts, store := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing gas_raw", `{"temperature":23.0,"humidity":80.1,"gas_digital":true}`},
		{"gas_raw out of range", `{"temperature":23.0,"humidity":80.1,"gas_raw":5000,"gas_digital":true}`},
		{"missing gas_digital", `{"temperature":23.0,"humidity":80.1,"gas_raw":197}`},
		{"malformed json", `{"temperature":`},
		{"temperature out of range", `{"temperature":300.0,"humidity":80.1,"gas_raw":197,"gas_digital":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postReading(t, ts, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}

			var errResp models.ErrorResponse
			decodeJSON(t, resp, &errResp)
			if errResp.Error == "" {
				t.Error("expected a machine-readable error code")
			}
		})
	}

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("store contains %d rows after rejected payloads, want 0", count)
	}
}

func TestIngest_NullTemperatureAccepted(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postReading(t, ts, `{"temperature":null,"humidity":80.0,"gas_raw":200,"gas_digital":true}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (null temperature is a sensor fault, not a bad request)", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestIngest_DuplicatesStoredAsDistinctRows(t *testing.T) {
	ts, _ := newTestServer(t)

	body := `{"temperature":23.0,"humidity":80.1,"gas_raw":197,"gas_digital":true}`

	var first, second models.IngestResponse
	decodeJSON(t, postReading(t, ts, body), &first)
	decodeJSON(t, postReading(t, ts, body), &second)

	if first.RowID == second.RowID {
		t.Errorf("duplicate submissions share row id %d, want distinct rows", first.RowID)
	}
}

func TestLatest_EmptyThenPopulated(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/readings/latest")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status on empty store = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	postReading(t, ts, `{"temperature":23.0,"humidity":80.1,"gas_raw":197,"gas_digital":true}`).Body.Close()

	resp, err = http.Get(ts.URL + "/api/readings/latest")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got models.StoredReading
	decodeJSON(t, resp, &got)
	if got.GasRaw != 197 {
		t.Errorf("GasRaw = %d, want 197", got.GasRaw)
	}
}

func TestQuery_NewestFirst(t *testing.T) {
	ts, _ := newTestServer(t)

	postReading(t, ts, `{"temperature":23.0,"humidity":80.1,"gas_raw":197,"gas_digital":true}`).Body.Close()
	postReading(t, ts, `{"temperature":null,"humidity":80.0,"gas_raw":200,"gas_digital":true}`).Body.Close()

	resp, err := http.Get(ts.URL + "/api/readings?limit=2")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}

	var got []models.StoredReading
	decodeJSON(t, resp, &got)
	if len(got) != 2 {
		t.Fatalf("got %d readings, want 2", len(got))
	}
	if got[0].GasRaw != 200 || got[1].GasRaw != 197 {
		t.Errorf("readings not newest-first: gas values %d, %d", got[0].GasRaw, got[1].GasRaw)
	}
	if got[0].Temperature != nil {
		t.Error("null temperature should survive to the query response")
	}
}

func TestQuery_BadLimitRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/readings?limit=abc")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStats_EndToEnd(t *testing.T) {
	ts, _ := newTestServer(t)

	postReading(t, ts, `{"temperature":23.0,"humidity":80.1,"gas_raw":197,"gas_digital":true}`).Body.Close()
	postReading(t, ts, `{"temperature":null,"humidity":80.0,"gas_raw":200,"gas_digital":true}`).Body.Close()

	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}

	var stats aggregate.WindowStats
	decodeJSON(t, resp, &stats)

	if stats.Rows != 2 {
		t.Errorf("rows = %d, want 2", stats.Rows)
	}
	if stats.Temperature == nil || stats.Temperature.Mean != 23.0 {
		t.Errorf("temperature stats = %+v, want mean 23.0 from the single valid value", stats.Temperature)
	}
	if stats.GasRaw == nil || stats.GasRaw.Mean != 198.5 {
		t.Errorf("gas stats = %+v, want mean 198.5 over both rows", stats.GasRaw)
	}
}

func TestStats_EmptyStoreReportsNoData(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out map[string]interface{}
	decodeJSON(t, resp, &out)
	if out["no_data"] != true {
		t.Errorf("response = %v, want explicit no_data flag", out)
	}
	if _, hasRows := out["rows"]; hasRows {
		t.Error("empty window must not report zero-valued stats")
	}
}

func TestTruncate_RequiresToken(t *testing.T) {
	ts, _ := newTestServer(t)

	postReading(t, ts, `{"temperature":23.0,"humidity":80.1,"gas_raw":197,"gas_digital":true}`).Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/readings", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/readings", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", resp.StatusCode)
	}

	var out models.TruncateResponse
	decodeJSON(t, resp, &out)
	if out.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", out.Deleted)
	}

	// A second truncation removes nothing; zero is a valid result.
	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/readings", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	decodeJSON(t, resp, &out)
	if out.Deleted != 0 {
		t.Errorf("deleted = %d, want 0", out.Deleted)
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Error("expected a request id header on every response")
	}
}

func TestQueryRange_RoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		postReading(t, ts, fmt.Sprintf(`{"temperature":20.0,"humidity":50.0,"gas_raw":%d,"gas_digital":false}`, 100+i)).Body.Close()
	}

	url := ts.URL + "/api/readings?start=2000-01-01T00:00:00Z&end=2100-01-01T00:00:00Z"
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}

	var got []models.StoredReading
	decodeJSON(t, resp, &got)
	if len(got) != 3 {
		t.Fatalf("got %d readings, want 3", len(got))
	}
	// Range queries are ascending by receipt time.
	for i := 1; i < len(got); i++ {
		if got[i].ReceivedAt.Before(got[i-1].ReceivedAt) {
			t.Error("range query rows not ascending")
		}
	}
}
