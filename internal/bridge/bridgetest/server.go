// Package bridgetest provides a minimal in-memory bridge fixture for
// exercising internal/bridge, internal/upload, and internal/download
// against something that behaves like the real service, without
// implementing the bridge server as a product.
package bridgetest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// Farmer is a pool entry the fixture hands out as pointers.
type Farmer struct {
	NodeID  string
	Address string
	Port    int
}

type frameRecord struct {
	id     string
	shards []shardRecord
}

type shardRecord struct {
	hash  string
	size  int64
	index int
}

type fileRecord struct {
	id       string
	frame    string
	mimetype string
	filename string
}

// Server is a stateful fake bridge. Safe for concurrent use.
type Server struct {
	mu      sync.Mutex
	frames  map[string]*frameRecord
	files   map[string][]fileRecord // bucketID -> files
	farmers []Farmer
	nextID  int

	// FlakyNodeID and FlakyRemaining simulate a farmer that rejects the
	// first FlakyRemaining contract attempts for a given shard index before
	// a retry or rotation succeeds; tests set these before issuing requests.
	FlakyNodeID    string
	FlakyRemaining int
	flakyAttempts  map[int]int
}

// New returns a ready Server with a small pool of synthetic farmers.
func New() *Server {
	return &Server{
		frames: map[string]*frameRecord{},
		files:  map[string][]fileRecord{},
		farmers: []Farmer{
			{NodeID: "farmer-0001", Address: "127.0.0.1", Port: 9001},
			{NodeID: "farmer-0002", Address: "127.0.0.1", Port: 9002},
			{NodeID: "farmer-0003", Address: "127.0.0.1", Port: 9003},
		},
		flakyAttempts: map[int]int{},
	}
}

// Start wraps the Server in an httptest.Server and returns its base URL.
func (s *Server) Start() *httptest.Server {
	return httptest.NewServer(s)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/frames":
		s.handleCreateFrame(w, r)
	case r.Method == http.MethodPut && matchPrefix(r.URL.Path, "/frames/"):
		s.handleAddShard(w, r, trimPrefix(r.URL.Path, "/frames/"))
	case r.Method == http.MethodGet && matchPrefix(r.URL.Path, "/frames/"):
		s.handleGetFrame(w, r, trimPrefix(r.URL.Path, "/frames/"))
	case r.Method == http.MethodPost && matchSuffix(r.URL.Path, "/files") && matchPrefix(r.URL.Path, "/buckets/"):
		bucket := bucketIDFromFilesPath(r.URL.Path)
		s.handleFinalizeFile(w, r, bucket)
	case r.Method == http.MethodPost && matchSuffix(r.URL.Path, "/tokens"):
		s.handleCreateToken(w, r)
	case r.Method == http.MethodGet && matchSuffix(r.URL.Path, "/files") && matchPrefix(r.URL.Path, "/buckets/"):
		bucket := bucketIDFromFilesPath(r.URL.Path)
		s.handleListFiles(w, r, bucket)
	case r.Method == http.MethodGet && matchPrefix(r.URL.Path, "/buckets/"):
		s.handleGetFilePointers(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleCreateFrame(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("frame-%04d", s.nextID)
	s.frames[id] = &frameRecord{id: id}
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleAddShard(w http.ResponseWriter, r *http.Request, frameID string) {
	var body struct {
		Hash       string   `json:"hash"`
		Size       int64    `json:"size"`
		Index      int      `json:"index"`
		Challenges []string `json:"challenges"`
		Tree       []string `json:"tree"`
		Exclude    []string `json:"exclude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	frame, ok := s.frames[frameID]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "frame not found")
		return
	}
	farmer := s.pickFarmer(body.Exclude)
	s.mu.Unlock()

	if farmer.NodeID == s.FlakyNodeID && s.flakyAttemptsFor(body.Index) < s.FlakyRemaining {
		s.mu.Lock()
		s.flakyAttempts[body.Index]++
		s.mu.Unlock()
		writeError(w, http.StatusInternalServerError, "farmer temporarily unavailable")
		return
	}

	s.mu.Lock()
	frame.shards = append(frame.shards, shardRecord{hash: body.Hash, size: body.Size, index: body.Index})
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"farmer": map[string]any{
			"nodeID":  farmer.NodeID,
			"address": farmer.Address,
			"port":    farmer.Port,
		},
		"token":   "push-" + body.Hash,
		"hash":    body.Hash,
		"size":    body.Size,
		"index":   body.Index,
		"channel": "PUSH",
	})
}

func (s *Server) handleGetFrame(w http.ResponseWriter, r *http.Request, frameID string) {
	s.mu.Lock()
	frame, ok := s.frames[frameID]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "frame not found")
		return
	}

	s.mu.Lock()
	shards := make([]map[string]any, 0, len(frame.shards))
	for _, sh := range frame.shards {
		shards = append(shards, map[string]any{"hash": sh.hash, "size": sh.size, "index": sh.index})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"id": frame.id, "shards": shards})
}

func (s *Server) flakyAttemptsFor(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flakyAttempts[index]
}

func (s *Server) pickFarmer(exclude []string) Farmer {
	excluded := map[string]bool{}
	for _, e := range exclude {
		excluded[e] = true
	}
	for _, f := range s.farmers {
		if !excluded[f.NodeID] {
			return f
		}
	}
	return s.farmers[0]
}

func (s *Server) handleFinalizeFile(w http.ResponseWriter, r *http.Request, bucket string) {
	var body struct {
		Frame    string `json:"frame"`
		Mimetype string `json:"mimetype"`
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("file-%04d", s.nextID)
	s.files[bucket] = append(s.files[bucket], fileRecord{
		id: id, frame: body.Frame, mimetype: body.Mimetype, filename: body.Filename,
	})
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"id": id, "filename": body.Filename, "mimetype": body.Mimetype, "frame": body.Frame,
	})
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	h := sha256.Sum256([]byte(r.URL.Path))
	writeJSON(w, http.StatusCreated, map[string]any{"token": hex.EncodeToString(h[:8])})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request, bucket string) {
	s.mu.Lock()
	files := append([]fileRecord{}, s.files[bucket]...)
	s.mu.Unlock()

	out := make([]map[string]any, 0, len(files))
	for _, f := range files {
		out = append(out, map[string]any{
			"id": f.id, "filename": f.filename, "mimetype": f.mimetype, "frame": f.frame,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetFilePointers(w http.ResponseWriter, r *http.Request) {
	bucket := bucketIDFromFilePath(r.URL.Path)
	fileID := fileIDFromFilePath(r.URL.Path)

	s.mu.Lock()
	var frame *frameRecord
	for _, f := range s.files[bucket] {
		if f.id == fileID {
			frame = s.frames[f.frame]
			break
		}
	}
	s.mu.Unlock()

	if frame == nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = len(frame.shards)
	}

	end := skip + limit
	if end > len(frame.shards) {
		end = len(frame.shards)
	}
	var window []shardRecord
	if skip < len(frame.shards) {
		window = frame.shards[skip:end]
	}

	pointers := make([]map[string]any, 0, len(window))
	s.mu.Lock()
	for _, sh := range window {
		farmer := s.farmers[sh.index%len(s.farmers)]
		pointers = append(pointers, map[string]any{
			"farmer": map[string]any{
				"nodeID": farmer.NodeID, "address": farmer.Address, "port": farmer.Port,
			},
			"token": "pull-" + sh.hash, "hash": sh.hash, "size": sh.size, "index": sh.index, "channel": "PULL",
		})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, pointers)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
