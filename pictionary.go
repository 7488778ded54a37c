// Telephone Pictionary
//
// One shared game per running instance. The first player writes a phrase,
// the next uploads a drawing of it, the next captions the drawing, and so
// on down the chain. At any point the chain can be reviewed in full
// ("End Game"), cleared ("New"), saved to a .tpi file, or replaced by
// loading one.
//
// Features:
// - Embedded browser UI at /, live-updated over a websocket at /ws
// - The page shows exactly one input at a time, derived from the last entry
// - Drawings are fetched by position: /entry/<index> serves the raw bytes
// - Save/load of the whole chain as .tpi files in the save directory
// - /saves lists available .tpi files, the web stand-in for a file picker
// - Failed saves and loads leave the in-memory game untouched
// - In-browser QR button to open the running game on a phone for
//   pass-and-play, backed by go-qrcode

package main

import (
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

func writeJSON(cfg *Config, w http.ResponseWriter, v any, errs chan<- error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs <- err
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()

	return json.NewDecoder(r.Body).Decode(v)
}

func serveSnapshot(cfg *Config, game *Game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(cfg, w, game.Snapshot(), errs)
	}
}

// serveEntry exposes drawing bytes to the page by sequence position.
// Phrases produce an empty response, anything outside the sequence a 404.
func serveEntry(cfg *Config, game *Game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		index, err := strconv.Atoi(ps.ByName("index"))
		if err != nil {
			http.Error(w, "entry not found", http.StatusNotFound)
			return
		}

		data, err := game.Drawing(index)
		switch {
		case errors.Is(err, ErrIndexOutOfRange):
			http.Error(w, "entry not found", http.StatusNotFound)
			return
		case data == nil:
			securityHeaders(cfg, w)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		written, err := w.Write(data)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Drawing %d (%s) to %s in %s",
			index,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func submitPhrase(cfg *Config, game *Game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		snap := game.Append(PhraseEntry(body.Text))
		logf(cfg, "GAME: Phrase %d submitted by %s", len(snap.Entries)-1, realIP(r))

		writeJSON(cfg, w, snap, errs)
	}
}

func submitDrawing(cfg *Config, game *Game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, cfg.maxDrawingSize))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "drawing too large", http.StatusRequestEntityTooLarge)
				return
			}
			errs <- err
			http.Error(w, "failed to read drawing", http.StatusBadRequest)
			return
		}
		if len(data) == 0 {
			http.Error(w, "empty drawing", http.StatusBadRequest)
			return
		}

		snap := game.Append(DrawingEntry(data))
		logf(cfg, "GAME: Drawing %d (%s) submitted by %s",
			len(snap.Entries)-1,
			humanReadableSize(int64(len(data))),
			realIP(r),
		)

		writeJSON(cfg, w, snap, errs)
	}
}

func clearGame(cfg *Config, game *Game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		snap := game.Clear()
		logf(cfg, "GAME: Cleared by %s", realIP(r))

		writeJSON(cfg, w, snap, errs)
	}
}

func setReview(cfg *Config, game *Game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body struct {
			Review bool `json:"review"`
		}
		if err := decodeBody(r, &body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		writeJSON(cfg, w, game.SetReview(body.Review), errs)
	}
}

func saveGameHandler(cfg *Config, game *Game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var body struct {
			Filename string `json:"filename"`
		}
		if err := decodeBody(r, &body); err != nil || body.Filename == "" {
			http.Error(w, "missing filename", http.StatusBadRequest)
			return
		}

		filename, size, err := SaveGame(cfg.saveDir, body.Filename, game.Entries())
		if err != nil {
			if _, cleanErr := cleanSaveName(body.Filename); cleanErr != nil {
				http.Error(w, cleanErr.Error(), http.StatusBadRequest)
				return
			}
			errs <- err
			http.Error(w, "failed to save game", http.StatusInternalServerError)
			return
		}

		logf(cfg, "SAVE: Game (%s) to %q for %s in %s",
			humanReadableSize(size),
			filename,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)

		writeJSON(cfg, w, struct {
			Filename string `json:"filename"`
			Size     int64  `json:"size"`
		}{filename, size}, errs)
	}
}

func loadGameHandler(cfg *Config, game *Game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var body struct {
			Filename string `json:"filename"`
		}
		if err := decodeBody(r, &body); err != nil || body.Filename == "" {
			http.Error(w, "missing filename", http.StatusBadRequest)
			return
		}

		entries, err := LoadGame(cfg.saveDir, body.Filename)
		switch {
		case errors.Is(err, ErrMalformedSave):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		case errors.Is(err, os.ErrNotExist):
			http.Error(w, "save file not found", http.StatusNotFound)
			return
		case err != nil:
			errs <- err
			http.Error(w, "failed to load game", http.StatusInternalServerError)
			return
		}

		snap := game.Replace(entries)

		logf(cfg, "LOAD: Game (%d entries) from %q for %s in %s",
			len(entries),
			body.Filename,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)

		writeJSON(cfg, w, snap, errs)
	}
}

func serveSaves(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		saves, err := listSaves(cfg.saveDir)
		if err != nil {
			errs <- err
			http.Error(w, "failed to list saves", http.StatusInternalServerError)
			return
		}

		writeJSON(cfg, w, struct {
			Saves []string `json:"saves"`
		}{saves}, errs)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveGameSocket streams a snapshot to the page on connect and after
// every mutation, so the view re-renders without polling.
func serveGameSocket(cfg *Config, game *Game) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: websocket upgrade: %v", err)
			return
		}

		client := &gameClient{
			conn: conn,
			send: make(chan Snapshot, 8),
		}

		game.register(client)

		go client.writePump()
		client.readPump(game)
	}
}

func (c *gameClient) readPump(g *Game) {
	defer func() {
		g.unregister(c)
		_ = c.conn.Close()
	}()

	// The page never sends anything; read only to notice the close.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *gameClient) writePump() {
	defer c.conn.Close()

	for snap := range c.send {
		if err := c.conn.WriteJSON(snap); err != nil {
			return
		}
	}
}

// serveQR renders a QR code for the running game's URL, so the session
// can be opened on a phone and passed around the table.
func serveQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/"

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// ---- Static file paths ----

//go:embed pictionary/index.html
var indexHTML []byte

//go:embed pictionary/app.css
var pictionaryCSS []byte

//go:embed pictionary/app.js
var pictionaryJS []byte

func getIndexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(pictionaryCSS)
	}
}

func getJsHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(pictionaryJS)
	}
}

// registerPictionaryGame sets up routes so that:
//   - /                → embedded game UI
//   - /state           → current snapshot
//   - /entry/:index    → raw drawing bytes by position
//   - /phrase, /drawing, /new, /review, /save, /load → game operations
//   - /saves           → available .tpi files
//   - /ws              → snapshot push channel
//   - /qr              → PNG QR code for this instance's URL
func registerPictionaryGame(cfg *Config, game *Game, mux *httprouter.Router, errs chan error) {
	mux.GET(cfg.prefix+"/", getIndexHandler(cfg))

	mux.GET(cfg.prefix+"/assets/pictionary/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/pictionary/app.js", getJsHandler(cfg))

	mux.GET(cfg.prefix+"/state", serveSnapshot(cfg, game, errs))
	mux.GET(cfg.prefix+"/entry/:index", serveEntry(cfg, game, errs))

	mux.POST(cfg.prefix+"/phrase", submitPhrase(cfg, game, errs))
	mux.POST(cfg.prefix+"/drawing", submitDrawing(cfg, game, errs))
	mux.POST(cfg.prefix+"/new", clearGame(cfg, game, errs))
	mux.POST(cfg.prefix+"/review", setReview(cfg, game, errs))
	mux.POST(cfg.prefix+"/save", saveGameHandler(cfg, game, errs))
	mux.POST(cfg.prefix+"/load", loadGameHandler(cfg, game, errs))

	mux.GET(cfg.prefix+"/saves", serveSaves(cfg, errs))

	mux.GET(cfg.prefix+"/ws", serveGameSocket(cfg, game))

	mux.GET(cfg.prefix+"/qr", serveQR(cfg))
}
