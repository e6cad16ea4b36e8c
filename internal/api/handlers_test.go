package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"dnicheck/internal/models"
	"dnicheck/internal/queue"
	"dnicheck/internal/storage"
	"dnicheck/internal/store"
	"dnicheck/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/panjf2000/ants/v2"
	"github.com/xuri/excelize/v2"
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, dni string) models.VerificationOutcome {
	if strings.HasPrefix(dni, "9") {
		return models.VerificationOutcome{Resultado: models.OutcomeError, Detalle: "HTTP 500"}
	}
	return models.VerificationOutcome{
		Resultado: "OK",
		Detalle:   map[string]interface{}{"Resultado": "OK", "Nombre": "ANA"},
	}
}

func setupTestServer(t *testing.T) (*Server, *queue.Queue) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	files, err := storage.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	pool, err := ants.NewPool(4, ants.WithNonblocking(true))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Release)

	hub := websocket.NewHub()
	q := queue.NewQueue(context.Background(), store.NewMemoryStore(), fakeVerifier{}, files, pool, hub)
	return NewServer(q, files, fakeVerifier{}, hub), q
}

func workbook(t *testing.T, rows ...string) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	for i, v := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetCellValue("Sheet1", cell, v); err != nil {
			t.Fatalf("set cell: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func waitTerminal(t *testing.T, s *Server, taskID string) map[string]interface{} {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := serve(s, httptest.NewRequest(http.MethodGet, "/progress/"+taskID, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("progress status = %d", w.Code)
		}
		snap := decode(t, w)
		if snap["status"] != string(models.JobStatusProcessing) {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("task did not finish")
	return nil
}

func TestUploadValidation(t *testing.T) {
	s, _ := setupTestServer(t)

	t.Run("no file", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.WriteField("other", "x")
		mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		w := serve(s, req)
		if w.Code != http.StatusBadRequest || decode(t, w)["error"] != msgNoFile {
			t.Fatalf("got %d %s", w.Code, w.Body.String())
		}
	})

	t.Run("not multipart", func(t *testing.T) {
		w := serve(s, httptest.NewRequest(http.MethodPost, "/upload", nil))
		if w.Code != http.StatusBadRequest || decode(t, w)["error"] != msgNoFile {
			t.Fatalf("got %d %s", w.Code, w.Body.String())
		}
	})

	t.Run("empty filename", func(t *testing.T) {
		w := serve(s, uploadRequest(t, "", []byte("x")))
		if w.Code != http.StatusBadRequest || decode(t, w)["error"] != msgNoFilename {
			t.Fatalf("got %d %s", w.Code, w.Body.String())
		}
	})

	t.Run("bad extension", func(t *testing.T) {
		w := serve(s, uploadRequest(t, "datos.csv", []byte("DNI\n1\n")))
		if w.Code != http.StatusBadRequest || decode(t, w)["error"] != msgBadExtension {
			t.Fatalf("got %d %s", w.Code, w.Body.String())
		}
	})
}

func TestUploadFlow(t *testing.T) {
	s, _ := setupTestServer(t)

	w := serve(s, uploadRequest(t, "lista.XLSX", workbook(t, "DNI", "111", "222", "999")))
	if w.Code != http.StatusOK {
		t.Fatalf("upload = %d %s", w.Code, w.Body.String())
	}
	taskID, _ := decode(t, w)["task_id"].(string)
	if taskID == "" {
		t.Fatal("missing task_id")
	}

	snap := waitTerminal(t, s, taskID)
	if snap["status"] != string(models.JobStatusCompleted) {
		t.Fatalf("snapshot = %v", snap)
	}
	if snap["progress"] != float64(100) || snap["total"] != float64(3) {
		t.Errorf("snapshot counters = %v", snap)
	}
	if snap["result_file"] != "resultado_"+taskID+".xlsx" {
		t.Errorf("result_file = %v", snap["result_file"])
	}
	results, _ := snap["resultados"].([]interface{})
	if len(results) != 3 {
		t.Fatalf("resultados = %v", snap["resultados"])
	}
	last := results[2].(map[string]interface{})
	if last["DNI"] != "999" || last["Resultado"] != models.OutcomeError {
		t.Errorf("last row = %v", last)
	}

	// polling a finished task is idempotent
	again := decode(t, serve(s, httptest.NewRequest(http.MethodGet, "/progress/"+taskID, nil)))
	if again["status"] != snap["status"] || len(again["resultados"].([]interface{})) != 3 {
		t.Errorf("second poll = %v", again)
	}

	page := serve(s, httptest.NewRequest(http.MethodGet, "/resultados/"+taskID, nil))
	if page.Code != http.StatusOK || !strings.Contains(page.Body.String(), "<td>222</td>") {
		t.Errorf("results page = %d %s", page.Code, page.Body.String())
	}

	dl := serve(s, httptest.NewRequest(http.MethodGet, "/descargar/"+taskID, nil))
	if dl.Code != http.StatusOK {
		t.Fatalf("download = %d %s", dl.Code, dl.Body.String())
	}
	if ct := dl.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("content type = %q", ct)
	}
	if cd := dl.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="verificacion_dni_`) {
		t.Errorf("content disposition = %q", cd)
	}
	f, err := excelize.OpenReader(bytes.NewReader(dl.Body.Bytes()))
	if err != nil {
		t.Fatalf("open download: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows("Sheet1")
	if len(rows) != 4 || rows[0][0] != "DNI" || rows[0][1] != "Resultado" {
		t.Errorf("downloaded rows = %v", rows)
	}
}

func TestUploadMissingColumn(t *testing.T) {
	s, _ := setupTestServer(t)

	w := serve(s, uploadRequest(t, "lista.xlsx", workbook(t, "Documento", "111")))
	if w.Code != http.StatusOK {
		t.Fatalf("upload = %d", w.Code)
	}
	taskID := decode(t, w)["task_id"].(string)

	snap := waitTerminal(t, s, taskID)
	want := map[string]interface{}{
		"status":   "error",
		"message":  `La columna "DNI" no existe en el archivo`,
		"progress": float64(0),
	}
	if len(snap) != len(want) {
		t.Fatalf("snapshot = %v", snap)
	}
	for k, v := range want {
		if snap[k] != v {
			t.Errorf("%s = %v, want %v", k, snap[k], v)
		}
	}
}

func TestUnknownTask(t *testing.T) {
	s, _ := setupTestServer(t)

	for _, path := range []string{"/progress/nope", "/descargar/nope"} {
		w := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusNotFound || decode(t, w)["error"] != msgTaskNotFound {
			t.Errorf("%s = %d %s", path, w.Code, w.Body.String())
		}
	}

	page := serve(s, httptest.NewRequest(http.MethodGet, "/resultados/nope", nil))
	if page.Code != http.StatusOK || !strings.Contains(page.Body.String(), msgTaskNotFound) {
		t.Errorf("results page = %d %s", page.Code, page.Body.String())
	}
}

func TestTaskNotCompleted(t *testing.T) {
	s, q := setupTestServer(t)

	taskID, err := q.CreateJob(context.Background())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	snap := decode(t, serve(s, httptest.NewRequest(http.MethodGet, "/progress/"+taskID, nil)))
	if snap["status"] != "processing" || snap["total"] != float64(0) {
		t.Errorf("snapshot = %v", snap)
	}

	dl := serve(s, httptest.NewRequest(http.MethodGet, "/descargar/"+taskID, nil))
	if dl.Code != http.StatusBadRequest || decode(t, dl)["error"] != msgNotCompleted {
		t.Errorf("download = %d %s", dl.Code, dl.Body.String())
	}

	page := serve(s, httptest.NewRequest(http.MethodGet, "/resultados/"+taskID, nil))
	if page.Code != http.StatusOK || !strings.Contains(page.Body.String(), msgNotCompleted) {
		t.Errorf("results page = %d %s", page.Code, page.Body.String())
	}
}

func TestVerifyDNI(t *testing.T) {
	s, _ := setupTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
		wantDNI    string
		wantResult string
	}{
		{"missing body", "", http.StatusBadRequest, msgDNIMissing, "", ""},
		{"missing key", `{"numero":"1"}`, http.StatusBadRequest, msgDNIMissing, "", ""},
		{"blank", `{"dni":"   "}`, http.StatusBadRequest, msgDNIInvalid, "", ""},
		{"null", `{"dni":null}`, http.StatusBadRequest, msgDNIInvalid, "", ""},
		{"string", `{"dni":" 12345678 "}`, http.StatusOK, "", "12345678", "OK"},
		{"number", `{"dni":12345678}`, http.StatusOK, "", "12345678", "OK"},
		{"remote error", `{"dni":"900"}`, http.StatusOK, "", "900", models.OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/verificar-dni", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := serve(s, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decode(t, w)
			if tt.wantError != "" {
				if resp["error"] != tt.wantError {
					t.Errorf("error = %v, want %q", resp["error"], tt.wantError)
				}
				return
			}
			if resp["DNI"] != tt.wantDNI || resp["Resultado"] != tt.wantResult {
				t.Errorf("response = %v", resp)
			}
			if _, ok := resp["Detalle"]; !ok {
				t.Error("missing Detalle")
			}
		})
	}
}

func TestPagesAndHealth(t *testing.T) {
	s, _ := setupTestServer(t)

	for _, path := range []string{"/", "/buscar"} {
		w := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
			t.Errorf("%s = %d %q", path, w.Code, w.Header().Get("Content-Type"))
		}
	}

	w := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || decode(t, w)["status"] != "ok" {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

// lockedBuffer collects log output written from job goroutines
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestUploadLogsContentHash(t *testing.T) {
	s, _ := setupTestServer(t)

	logs := &lockedBuffer{}
	log.SetOutput(logs)
	defer log.SetOutput(os.Stderr)

	content := workbook(t, "DNI", "111")
	w := serve(s, uploadRequest(t, "lista.xlsx", content))
	if w.Code != http.StatusOK {
		t.Fatalf("upload = %d %s", w.Code, w.Body.String())
	}

	sum := sha256.Sum256(content)
	if !strings.Contains(logs.String(), "sha256 "+hex.EncodeToString(sum[:])) {
		t.Fatalf("log = %q, want upload hash", logs.String())
	}
}
