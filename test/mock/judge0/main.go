// Command judge0 is a stand-in Judge0 API for running the gateway locally.
// Submissions are "executed" by echoing the source code as stdout.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

var (
	port  = flag.Int("port", 2358, "Server port")
	delay = flag.Duration("delay", 0, "artificial processing delay per submission")
)

type submission struct {
	Token      string `json:"token"`
	SourceCode string `json:"source_code,omitempty"`
	LanguageID int    `json:"language_id,omitempty"`
	Stdin      string `json:"stdin,omitempty"`
	Stdout     string `json:"stdout"`
	Status     status `json:"status"`
	Time       string `json:"time"`
	Memory     int    `json:"memory"`
}

type status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

var accepted = status{ID: 3, Description: "Accepted"}

var languages = []map[string]any{
	{"id": 50, "name": "C (GCC 9.2.0)"},
	{"id": 54, "name": "C++ (GCC 9.2.0)"},
	{"id": 62, "name": "Java (OpenJDK 13.0.1)"},
	{"id": 63, "name": "JavaScript (Node.js 12.14.0)"},
	{"id": 71, "name": "Python (3.8.1)"},
}

type server struct {
	mu          sync.RWMutex
	submissions map[string]submission
	logger      *slog.Logger
}

func main() {
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s := &server{
		submissions: make(map[string]submission),
		logger:      logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/about", s.about).Methods(http.MethodGet)
	r.HandleFunc("/languages", s.languages).Methods(http.MethodGet)
	r.HandleFunc("/submissions", s.create).Methods(http.MethodPost)
	r.HandleFunc("/submissions/{token}", s.get).Methods(http.MethodGet)
	r.HandleFunc("/submissions/{token}", s.delete).Methods(http.MethodDelete)

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("starting mock Judge0", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func (s *server) about(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":  "1.13.0",
		"homepage": "https://judge0.com",
	})
}

func (s *server) languages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, languages)
}

func (s *server) create(w http.ResponseWriter, r *http.Request) {
	var sub submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	if *delay > 0 {
		time.Sleep(*delay)
	}

	sub.Token = newToken()
	sub.Stdout = sub.SourceCode
	sub.Status = accepted
	sub.Time = "0.01"
	sub.Memory = 3300

	s.mu.Lock()
	s.submissions[sub.Token] = sub
	s.mu.Unlock()

	s.logger.Info("submission created", "token", sub.Token, "language_id", sub.LanguageID)

	if r.URL.Query().Get("wait") == "true" {
		writeJSON(w, http.StatusCreated, sub)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": sub.Token})
}

func (s *server) get(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	s.mu.RLock()
	sub, ok := s.submissions[token]
	s.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *server) delete(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	s.mu.Lock()
	sub, ok := s.submissions[token]
	delete(s.submissions, token)
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
