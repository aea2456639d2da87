package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-console/internal/crawler"
	"github.com/JakeFAU/crawl-console/internal/export"
	"github.com/JakeFAU/crawl-console/internal/hash/sha256"
	"github.com/JakeFAU/crawl-console/internal/pipeline"
	"github.com/JakeFAU/crawl-console/internal/report"
	"github.com/JakeFAU/crawl-console/internal/stats"
)

type resultsPage struct {
	Items []crawler.CrawlResult `json:"items"`
	View  pipeline.View         `json:"view"`
}

func (s *Server) pageResponse() resultsPage {
	p := s.deps.Controller.Pipeline()
	items, _ := p.Page()
	return resultsPage{Items: items, View: p.View()}
}

func (s *Server) getResults(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pageResponse())
}

func (s *Server) filterResults(w http.ResponseWriter, r *http.Request) {
	var criteria pipeline.FilterCriteria
	if err := decodeJSON(r, &criteria); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Controller.Pipeline().ApplyFilter(criteria); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.pageResponse())
}

// sortResults applies an explicit sort, or toggles on the field when no
// direction is given (the column-header click).
func (s *Server) sortResults(w http.ResponseWriter, r *http.Request) {
	var spec pipeline.SortSpec
	if err := decodeJSON(r, &spec); err != nil {
		s.fail(w, r, err)
		return
	}
	p := s.deps.Controller.Pipeline()
	var err error
	if spec.Direction == "" {
		_, err = p.ToggleSort(spec.Field)
	} else {
		err = p.ApplySort(spec)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.pageResponse())
}

func (s *Server) setPage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Page int `json:"page"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.deps.Controller.Pipeline().SetPage(req.Page)
	writeJSON(w, http.StatusOK, s.pageResponse())
}

func (s *Server) setPageSize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PageSize int `json:"pageSize"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Controller.Pipeline().SetPageSize(req.PageSize); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.pageResponse())
}

func (s *Server) getStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stats.Compute(s.deps.Controller.Pipeline().Results()))
}

func (s *Server) getGraph(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Graph.Build(s.deps.Controller.Pipeline().Results()))
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	summary := report.FromSnapshot(s.deps.Controller.Snapshot(), s.deps.Controller.Pipeline().Results(), s.now())
	var buf bytes.Buffer
	if err := report.WriteMarkdown(&buf, summary); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Warn("write report failed", zap.Error(err))
	}
}

func (s *Server) exportArtifact(r *http.Request) (export.Artifact, error) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		return export.Artifact{}, err
	}
	return export.Export(s.deps.Controller.Pipeline().Results(), format)
}

func (s *Server) downloadExport(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.exportArtifact(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	etag := sha256.ETag(artifact.Checksum)
	w.Header().Set("ETag", etag)
	if sha256.Matches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Data); err != nil {
		s.logger.Warn("write export failed", zap.Error(err))
	}
}

func (s *Server) archiveExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "export archive unavailable")
		return
	}
	artifact, err := s.exportArtifact(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	uri, err := s.deps.Archiver.Archive(r.Context(), s.deps.Controller.Snapshot().SessionID, artifact)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"uri":         uri,
		"filename":    artifact.Filename,
		"contentType": artifact.ContentType,
		"bytes":       len(artifact.Data),
		"sha256":      artifact.Checksum,
	})
}

func (s *Server) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Controller.Settings())
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	next := s.deps.Controller.Settings()
	if err := decodeJSON(r, &next); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Controller.SaveSettings(r.Context(), next); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}
