package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"jidhr/internal/arabic"
	"jidhr/internal/extract"
	"jidhr/internal/index"
	"jidhr/internal/source"
	"jidhr/internal/store"
)

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respond(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

type extractRequest struct {
	Word     string `json:"word"`
	Sura     int    `json:"sura"`
	Aya      int    `json:"aya"`
	Position *int   `json:"position"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Word == "" {
		s.respondError(w, http.StatusBadRequest, "word is required")
		return
	}

	var loc *source.Location
	if req.Sura > 0 && req.Aya > 0 && req.Position != nil {
		loc = &source.Location{Sura: req.Sura, Aya: req.Aya, Position: *req.Position}
	}

	out, err := s.orch.ExtractRoot(r.Context(), req.Word, loc)
	if err != nil {
		s.log.Error("extraction failed", zap.String("word", req.Word), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "extraction failed")
		return
	}
	s.respond(w, http.StatusOK, out)
}

type jobRequest struct {
	FromSura  int `json:"from_sura"`
	ToSura    int `json:"to_sura"`
	ChunkSize int `json:"chunk_size"`
}

type jobResponse struct {
	ID       string           `json:"id"`
	Progress extract.Progress `json:"progress"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	rng := store.CorpusRange{FromSura: req.FromSura, ToSura: req.ToSura}
	// The job must outlive the submit request.
	job, err := s.jobs.RunBatch(context.WithoutCancel(r.Context()), rng, req.ChunkSize)
	if err != nil {
		s.log.Error("batch submit failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "batch submit failed")
		return
	}
	s.respond(w, http.StatusAccepted, jobResponse{ID: job.ID.String(), Progress: job.Progress()})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.List()
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobResponse{ID: j.ID.String(), Progress: j.Progress()})
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) jobFromPath(w http.ResponseWriter, r *http.Request) (*extract.Job, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed job id")
		return nil, false
	}
	job, ok := s.jobs.Get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	return job, true
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobFromPath(w, r)
	if !ok {
		return
	}
	s.respond(w, http.StatusOK, jobResponse{ID: job.ID.String(), Progress: job.Progress()})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobFromPath(w, r)
	if !ok {
		return
	}
	job.Cancel()
	s.respond(w, http.StatusOK, jobResponse{ID: job.ID.String(), Progress: job.Progress()})
}

type passRequest struct {
	FromSura int `json:"from_sura"`
	ToSura   int `json:"to_sura"`
}

func (s *Server) handleResolvePass(w http.ResponseWriter, r *http.Request) {
	var req passRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}
	sum, err := s.resolver.Run(r.Context(), store.CorpusRange{FromSura: req.FromSura, ToSura: req.ToSura})
	if err != nil {
		s.log.Error("resolve pass failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "resolve pass failed")
		return
	}
	s.respond(w, http.StatusOK, sum)
}

func (s *Server) handleIndexPass(w http.ResponseWriter, r *http.Request) {
	var req passRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}
	sum, err := s.indexer.Run(r.Context(), store.CorpusRange{FromSura: req.FromSura, ToSura: req.ToSura})
	if err != nil {
		s.log.Error("index pass failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "index pass failed")
		return
	}
	s.respond(w, http.StatusOK, sum)
}

type rootResponse struct {
	Root       string   `json:"root"`
	Meaning    string   `json:"meaning,omitempty"`
	TokenCount int      `json:"token_count"`
	Related    []string `json:"related_roots,omitempty"`
	Members    []int64  `json:"members,omitempty"`
}

func (s *Server) handleGetRoot(w http.ResponseWriter, r *http.Request) {
	root, err := s.store.GetRoot(r.Context(), chi.URLParam(r, "root"))
	if errors.Is(err, store.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "root not found")
		return
	}
	if err != nil {
		s.log.Error("root lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "root lookup failed")
		return
	}

	members, err := index.DecodeMembers(root.Members, root.MembersCodec)
	if err != nil {
		s.log.Error("membership decode failed", zap.String("root", root.Root), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "membership decode failed")
		return
	}
	s.respond(w, http.StatusOK, rootResponse{
		Root:       root.Root,
		Meaning:    root.Meaning,
		TokenCount: root.TokenCount,
		Related:    root.Related,
		Members:    members,
	})
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	coords := make([]int, 3)
	for i, name := range []string{"sura", "aya", "position"} {
		n, err := strconv.Atoi(chi.URLParam(r, name))
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "malformed "+name)
			return
		}
		coords[i] = n
	}

	tok, err := s.store.GetTokenAt(r.Context(), coords[0], coords[1], coords[2])
	if errors.Is(err, store.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "token not found")
		return
	}
	if err != nil {
		s.log.Error("token lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "token lookup failed")
		return
	}
	s.respond(w, http.StatusOK, tok)
}

// handleFindWord returns every token sharing a normalized form, so clients
// can see all occurrences of one word across the corpus.
func (s *Server) handleFindWord(w http.ResponseWriter, r *http.Request) {
	word := arabic.Normalize(chi.URLParam(r, "word"))
	if word == "" {
		s.respondError(w, http.StatusBadRequest, "word is required")
		return
	}
	tokens, err := s.store.FindByNormalized(r.Context(), word)
	if err != nil {
		s.log.Error("word lookup failed", zap.String("word", word), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "word lookup failed")
		return
	}
	if len(tokens) == 0 {
		s.respondError(w, http.StatusNotFound, "word not found")
		return
	}
	s.respond(w, http.StatusOK, tokens)
}

type statsResponse struct {
	Tokens   int                  `json:"tokens"`
	Roots    int                  `json:"roots"`
	Statuses map[store.Status]int `json:"statuses"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := s.store.StatusCounts(ctx, store.CorpusRange{})
	if err != nil {
		s.log.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	tokens, err := s.store.CountTokens(ctx, store.CorpusRange{})
	if err != nil {
		s.log.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	roots, err := s.store.ListRoots(ctx)
	if err != nil {
		s.log.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	s.respond(w, http.StatusOK, statsResponse{
		Tokens:   tokens,
		Roots:    len(roots),
		Statuses: counts,
	})
}
