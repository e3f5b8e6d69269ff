package gamehub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/nullhaven/quizhost/internal/quiz"
	"github.com/nullhaven/quizhost/internal/session"
)

// SecurityHeaders is applied to every non-websocket response this
// package serves; the caller supplies its own implementation so this
// package does not need to import the root Config type.
type SecurityHeaders func(w http.ResponseWriter)

// Logf is a verbose-gated logging hook.
type Logf func(format string, args ...any)

// Routes bundles the dependencies Register needs from the rest of the
// binary.
type Routes struct {
	Dir     *session.Directory
	Prefix  string
	Verbose bool
	Headers SecurityHeaders
	Log     Logf
}

type createSessionRequest struct {
	Questions []quiz.Question `json:"questions"`
}

type createSessionResponse struct {
	Pin string `json:"pin"`
}

// serveCreateSession accepts an already-authored quiz body and starts a
// fresh session for it. A quiz store, ingestion validation, and rate
// limiting are assumed to live upstream of this handler; Normalize and
// Validate still run here so a session never starts from a structurally
// broken quiz.
func (rt *Routes) serveCreateSession() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		rt.Headers(w)

		var req createSessionRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		if err := dec.Decode(&req); err != nil {
			http.Error(w, "malformed quiz", http.StatusBadRequest)
			return
		}

		q := quiz.Quiz{Questions: req.Questions}.Normalize()
		if err := q.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		_, pin := rt.Dir.Create(q)
		rt.Log("GAMEHUB: created session %s (%d questions)", pin, len(q.Questions))

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(createSessionResponse{Pin: pin})
	}
}

// serveProbeSession reports whether a pin is still joinable: ok,
// alreadyStarted, or notFound.
func (rt *Routes) serveProbeSession() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		rt.Headers(w)

		pin := ps.ByName("pin")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		switch rt.Dir.ProbeSession(pin) {
		case session.ProbeOK:
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		case session.ProbeAlreadyStarted:
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "alreadyStarted"})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "notFound"})
		}
	}
}

func (rt *Routes) serveHostPage() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		pin := ps.ByName("pin")
		if !session.ValidPin(pin) {
			http.NotFound(w, r)
			return
		}
		writeCachedHTML(w, rt.Headers, hostHTML)
	}
}

func (rt *Routes) servePlayPage() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		pin := ps.ByName("pin")
		if !session.ValidPin(pin) {
			http.NotFound(w, r)
			return
		}
		writeCachedHTML(w, rt.Headers, playHTML)
	}
}

func writeCachedHTML(w http.ResponseWriter, headers SecurityHeaders, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
	headers(w)

	_, _ = w.Write(body)
}

func (rt *Routes) serveClientAsset(contentType string, body []byte) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		rt.Headers(w)

		_, _ = w.Write(body)
	}
}

// serveQR renders a PNG QR code of the player join URL for :pin.
func (rt *Routes) serveQR() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		pin := ps.ByName("pin")
		if !session.ValidPin(pin) {
			http.Error(w, "invalid pin", http.StatusBadRequest)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + rt.Prefix + "/play/" + pin

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		rt.Headers(w)
		_, _ = w.Write(png)
	}
}

// Register wires every gamehub route onto mux: a create/probe pair,
// per-pin host/play HTML views, the websocket endpoint, shared client
// assets, and the QR shortcut.
func Register(mux *httprouter.Router, dir *session.Directory, prefix string, verbose bool, headers SecurityHeaders, logf Logf) {
	rt := &Routes{Dir: dir, Prefix: prefix, Verbose: verbose, Headers: headers, Log: logf}
	hub := NewHub(dir, verbose)

	mux.POST(prefix+"/api/sessions", rt.serveCreateSession())
	mux.GET(prefix+"/api/sessions/:pin/probe", rt.serveProbeSession())

	mux.GET(prefix+"/host/:pin", rt.serveHostPage())
	mux.GET(prefix+"/play/:pin", rt.servePlayPage())

	mux.GET(prefix+"/quiz-assets/app.css", rt.serveClientAsset("text/css; charset=utf-8", clientCSS))
	mux.GET(prefix+"/quiz-assets/app.js", rt.serveClientAsset("application/javascript; charset=utf-8", clientJS))

	mux.GET(prefix+"/:pin/ws", hub.ServeWS())

	mux.GET(prefix+"/:pin/qr", rt.serveQR())
}
