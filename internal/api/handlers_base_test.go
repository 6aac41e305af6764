// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/HtooAg/FAME-sub001/internal/cache"
	"github.com/HtooAg/FAME-sub001/internal/models"
	"github.com/HtooAg/FAME-sub001/internal/queue"
	"github.com/HtooAg/FAME-sub001/internal/recovery"
	"github.com/HtooAg/FAME-sub001/internal/storage"
	"github.com/HtooAg/FAME-sub001/internal/sync"
)

const testEventID = "event-under-test"

// envelope mirrors models.APIResponse with raw data for typed
// sub-decoding in assertions.
type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

type apiFixture struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
	manager *cache.Manager
	store   *storage.RecordStore
	remote  *storage.RecordStore
	syncSvc *sync.Service
	recSvc  *recovery.Service
}

func testManagerConfig() cache.ManagerConfig {
	config := cache.DefaultManagerConfig()
	config.InstanceID = "api-under-test"
	config.CleanupInterval = time.Hour
	config.Queue = queue.Config{
		RetryDelay:    time.Millisecond,
		MaxBackoff:    time.Second,
		MaxRetries:    3,
		BatchSize:     32,
		DrainInterval: 10 * time.Millisecond,
	}
	return config
}

// newAPIFixture builds a full handler over an initialized manager with
// in-memory local and remote stores.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store := storage.NewRecordStore(storage.NewMemStore())
	remote := storage.NewRecordStore(storage.NewMemStore())

	manager := cache.NewManager(testManagerConfig(), cache.Deps{Store: store})
	if err := manager.Initialize(context.Background(), testEventID); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() {
		_ = manager.Destroy(context.Background())
	})

	syncSvc := sync.NewService(sync.Config{EventID: testEventID}, store, remote, nil)
	recSvc := recovery.NewService(recovery.DefaultConfig(), manager)

	handler := NewHandler(Config{
		CORSOrigins: []string{"*"},
		Version:     "test",
	}, manager, syncSvc, recSvc, nil)

	return &apiFixture{
		t:       t,
		handler: handler,
		router:  NewRouter(handler).Setup(),
		manager: manager,
		store:   store,
		remote:  remote,
		syncSvc: syncSvc,
		recSvc:  recSvc,
	}
}

// newUninitializedFixture builds a handler whose manager never
// initialized, for not-ready paths.
func newUninitializedFixture(t *testing.T) *apiFixture {
	t.Helper()

	store := storage.NewRecordStore(storage.NewMemStore())
	manager := cache.NewManager(testManagerConfig(), cache.Deps{Store: store})
	handler := NewHandler(Config{Version: "test"}, manager, nil, nil, nil)

	return &apiFixture{
		t:       t,
		handler: handler,
		router:  NewRouter(handler).Setup(),
		manager: manager,
		store:   store,
	}
}

// do runs one request through the full router.
func (f *apiFixture) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			f.t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// doRaw runs one request with a literal body, for malformed-JSON cases.
func (f *apiFixture) doRaw(method, target, body string) *httptest.ResponseRecorder {
	f.t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return env
}

// requireError asserts status code and error code together.
func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) envelope {
	t.Helper()

	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Status != "error" {
		t.Fatalf("expected error envelope, got %q", env.Status)
	}
	if env.Error == nil || env.Error.Code != code {
		t.Fatalf("expected error code %s, got %+v", code, env.Error)
	}
	return env
}

// requireSuccess asserts a success envelope and decodes data into out.
func requireSuccess(t *testing.T, rec *httptest.ResponseRecorder, status int, out interface{}) envelope {
	t.Helper()

	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Status != "success" {
		t.Fatalf("expected success envelope, got %q: %s", env.Status, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data: %v\ndata: %s", err, string(env.Data))
		}
	}
	return env
}

// putStatus writes one status through the API and fails the test on
// rejection.
func (f *apiFixture) putStatus(artistID string, status models.PerformanceStatus, version int64) models.StatusRecord {
	f.t.Helper()

	rec := f.do(http.MethodPut, "/api/v1/events/"+testEventID+"/artists/"+artistID+"/status",
		UpdateStatusRequest{PerformanceStatus: &status, Version: version})
	var record models.StatusRecord
	requireSuccess(f.t, rec, http.StatusOK, &record)
	return record
}

func statusPtr(s models.PerformanceStatus) *models.PerformanceStatus {
	return &s
}

func intPtr(i int) *int {
	return &i
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
