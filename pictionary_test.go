package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

func newTestMux(t *testing.T, game *Game) (*httprouter.Router, *Config) {
	t.Helper()

	cfg := &Config{
		saveDir:        t.TempDir(),
		maxDrawingSize: 1 << 20,
	}

	mux := httprouter.New()
	errs := make(chan error, 64)
	registerPictionaryGame(cfg, game, mux, errs)

	return mux, cfg
}

func doRequest(t *testing.T, mux *httprouter.Router, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	return rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) Snapshot {
	t.Helper()

	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("response was not a snapshot: %v\n%s", err, rec.Body.String())
	}
	return snap
}

func TestServeEntry(t *testing.T) {
	game := NewGame()
	game.Append(PhraseEntry("a cat"))
	game.Append(DrawingEntry([]byte{0x89, 0x50, 0x4e, 0x47}))

	mux, _ := newTestMux(t, game)

	cases := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   []byte
	}{
		{name: "drawing bytes", path: "/entry/1", wantStatus: http.StatusOK, wantBody: []byte{0x89, 0x50, 0x4e, 0x47}},
		{name: "phrase yields no body", path: "/entry/0", wantStatus: http.StatusNoContent},
		{name: "out of range", path: "/entry/2", wantStatus: http.StatusNotFound},
		{name: "negative", path: "/entry/-1", wantStatus: http.StatusNotFound},
		{name: "not a number", path: "/entry/cat", wantStatus: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, mux, http.MethodGet, tc.path, nil)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantBody != nil && !bytes.Equal(rec.Body.Bytes(), tc.wantBody) {
				t.Fatalf("body: got %v, want %v", rec.Body.Bytes(), tc.wantBody)
			}
		})
	}
}

func TestSubmitPhraseAdvancesInput(t *testing.T) {
	mux, _ := newTestMux(t, NewGame())

	rec := doRequest(t, mux, http.MethodGet, "/state", nil)
	if snap := decodeSnapshot(t, rec); snap.Next != InputInitialPhrase {
		t.Fatalf("fresh game wants %q, got %q", InputInitialPhrase, snap.Next)
	}

	rec = doRequest(t, mux, http.MethodPost, "/phrase", []byte(`{"text":"a cat"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d\n%s", rec.Code, rec.Body.String())
	}
	snap := decodeSnapshot(t, rec)
	if snap.Next != InputDrawing {
		t.Fatalf("after phrase, want %q, got %q", InputDrawing, snap.Next)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].Text != "a cat" {
		t.Fatalf("unexpected entries: %#v", snap.Entries)
	}
}

func TestSubmitPhraseRejectsBadBody(t *testing.T) {
	game := NewGame()
	mux, _ := newTestMux(t, game)

	rec := doRequest(t, mux, http.MethodPost, "/phrase", []byte(`{{`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(game.Entries()) != 0 {
		t.Fatal("bad body still appended an entry")
	}
}

func TestSubmitDrawing(t *testing.T) {
	mux, _ := newTestMux(t, NewGame())

	doRequest(t, mux, http.MethodPost, "/phrase", []byte(`{"text":"a cat"}`))

	rec := doRequest(t, mux, http.MethodPost, "/drawing", []byte{0x89, 0x50, 0x4e, 0x47})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d\n%s", rec.Code, rec.Body.String())
	}
	if snap := decodeSnapshot(t, rec); snap.Next != InputPhrase {
		t.Fatalf("after drawing, want %q, got %q", InputPhrase, snap.Next)
	}

	rec = doRequest(t, mux, http.MethodGet, "/entry/1", nil)
	if !bytes.Equal(rec.Body.Bytes(), []byte{0x89, 0x50, 0x4e, 0x47}) {
		t.Fatalf("drawing bytes not served back: %v", rec.Body.Bytes())
	}
}

func TestSubmitDrawingRejectsEmptyAndOversized(t *testing.T) {
	game := NewGame()
	mux, cfg := newTestMux(t, game)
	cfg.maxDrawingSize = 8

	rec := doRequest(t, mux, http.MethodPost, "/drawing", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty drawing: got %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doRequest(t, mux, http.MethodPost, "/drawing", bytes.Repeat([]byte{1}, 9))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized drawing: got %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}

	if len(game.Entries()) != 0 {
		t.Fatal("rejected drawings still appended")
	}
}

func TestReviewToggle(t *testing.T) {
	mux, _ := newTestMux(t, NewGame())

	doRequest(t, mux, http.MethodPost, "/phrase", []byte(`{"text":"cat"}`))
	doRequest(t, mux, http.MethodPost, "/drawing", []byte{0x89, 0x50})

	rec := doRequest(t, mux, http.MethodPost, "/review", []byte(`{"review":true}`))
	snap := decodeSnapshot(t, rec)
	if !snap.Review {
		t.Fatal("review mode not entered")
	}
	if len(snap.Entries) != 2 || snap.Entries[0].Text != "cat" || snap.Entries[1].Kind != KindDrawing {
		t.Fatalf("review entries wrong: %#v", snap.Entries)
	}

	rec = doRequest(t, mux, http.MethodPost, "/review", []byte(`{"review":false}`))
	if snap := decodeSnapshot(t, rec); snap.Review {
		t.Fatal("review mode not left")
	}
}

func TestNewClearsGame(t *testing.T) {
	mux, _ := newTestMux(t, NewGame())

	doRequest(t, mux, http.MethodPost, "/phrase", []byte(`{"text":"cat"}`))

	rec := doRequest(t, mux, http.MethodPost, "/new", nil)
	snap := decodeSnapshot(t, rec)
	if len(snap.Entries) != 0 || snap.Next != InputInitialPhrase {
		t.Fatalf("game not cleared: %#v", snap)
	}
}

func TestSaveLoadHandlers(t *testing.T) {
	game := NewGame()
	mux, _ := newTestMux(t, game)

	doRequest(t, mux, http.MethodPost, "/phrase", []byte(`{"text":"a cat"}`))
	doRequest(t, mux, http.MethodPost, "/drawing", []byte{0x89, 0x50, 0x4e})
	doRequest(t, mux, http.MethodPost, "/phrase", []byte(`{"text":"a dog?"}`))

	rec := doRequest(t, mux, http.MethodPost, "/save", []byte(`{"filename":"game"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("save: got %d\n%s", rec.Code, rec.Body.String())
	}
	var saved struct {
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatal(err)
	}
	if saved.Filename != "game.tpi" {
		t.Fatalf("want game.tpi, got %q", saved.Filename)
	}

	rec = doRequest(t, mux, http.MethodGet, "/saves", nil)
	if !strings.Contains(rec.Body.String(), "game.tpi") {
		t.Fatalf("saves listing missing file: %s", rec.Body.String())
	}

	before := game.Entries()
	doRequest(t, mux, http.MethodPost, "/new", nil)

	rec = doRequest(t, mux, http.MethodPost, "/load", []byte(`{"filename":"game.tpi"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("load: got %d\n%s", rec.Code, rec.Body.String())
	}
	if !entriesEqual(before, game.Entries()) {
		t.Fatalf("loaded game differs: %#v", game.Entries())
	}
}

func TestGameSocketPushesSnapshots(t *testing.T) {
	mux, _ := newTestMux(t, NewGame())

	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// A snapshot arrives immediately on connect.
	var snap Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read seed snapshot: %v", err)
	}
	if snap.Next != InputInitialPhrase || len(snap.Entries) != 0 {
		t.Fatalf("unexpected seed snapshot: %#v", snap)
	}

	resp, err := http.Post(srv.URL+"/phrase", "application/json", strings.NewReader(`{"text":"a cat"}`))
	if err != nil {
		t.Fatalf("post phrase: %v", err)
	}
	resp.Body.Close()

	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read pushed snapshot: %v", err)
	}
	if snap.Next != InputDrawing || len(snap.Entries) != 1 {
		t.Fatalf("mutation not pushed: %#v", snap)
	}
}

func TestSaveRejectsBadFilenames(t *testing.T) {
	mux, cfg := newTestMux(t, NewGame())

	cases := []struct {
		name string
		body string
	}{
		{name: "missing filename", body: `{}`},
		{name: "path traversal", body: `{"filename":"../evil"}`},
		{name: "bare dot dot", body: `{"filename":".."}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, mux, http.MethodPost, "/save", []byte(tc.body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("got %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}

	dirents, err := os.ReadDir(cfg.saveDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirents) != 0 {
		t.Fatalf("rejected saves still wrote files: %v", dirents)
	}
}

func TestLoadFailuresLeaveStateUntouched(t *testing.T) {
	game := NewGame()
	mux, cfg := newTestMux(t, game)

	doRequest(t, mux, http.MethodPost, "/phrase", []byte(`{"text":"keep me"}`))
	before := game.Entries()

	if err := os.WriteFile(filepath.Join(cfg.saveDir, "corrupt.tpi"), []byte(`[{"Phrase":`), 0644); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, mux, http.MethodPost, "/load", []byte(`{"filename":"corrupt.tpi"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("corrupt load: got %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doRequest(t, mux, http.MethodPost, "/load", []byte(`{"filename":"missing.tpi"}`))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing load: got %d, want %d", rec.Code, http.StatusNotFound)
	}

	if !entriesEqual(before, game.Entries()) {
		t.Fatalf("failed loads mutated state: %#v", game.Entries())
	}
}
