// Package api serves the library workbench: upload GM libraries, inspect and
// disassemble them, and merge patches into stored copies over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/gmkit/internal/logger"
	"github.com/samcharles93/gmkit/pkg/gm"
)

// DefaultMaxUpload bounds a single uploaded library.
const DefaultMaxUpload = 64 << 20

type Server struct {
	store     *LibraryStore
	log       logger.Logger
	clock     func() time.Time
	maxUpload int64
}

func NewServer(store *LibraryStore, log logger.Logger) *Server {
	if store == nil {
		store = NewLibraryStore()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		store:     store,
		log:       log,
		clock:     time.Now,
		maxUpload: DefaultMaxUpload,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/libraries", s.handleListLibraries)
	e.POST("/v1/libraries", s.handleUploadLibrary)
	e.GET("/v1/libraries/:id", s.handleGetLibrary)
	e.DELETE("/v1/libraries/:id", s.handleDeleteLibrary)
	e.GET("/v1/libraries/:id/raw", s.handleRawLibrary)
	e.GET("/v1/libraries/:id/strings", s.handleStrings)
	e.GET("/v1/libraries/:id/functions/:index/disasm", s.handleDisasm)
	e.POST("/v1/libraries/:id/merge", s.handleMerge)
}

func (s *Server) handleUploadLibrary(c *echo.Context) error {
	raw, err := readBody(c.Request().Body, s.maxUpload)
	if err != nil {
		return writeFailure(c, err)
	}
	lib, err := gm.Decode(raw)
	if err != nil {
		return writeFailure(c, err)
	}
	rec := s.store.Put(lib, c.QueryParam("name"), "", s.clock())
	s.log.Info("library stored", "id", rec.ID, "name", rec.Name, "functions", len(lib.Functions), "bytes", len(raw))
	return c.JSON(http.StatusOK, libraryResponse(rec))
}

func (s *Server) handleListLibraries(c *echo.Context) error {
	recs := s.store.List()
	out := LibraryListResponse{Object: "list", Data: make([]LibraryResponse, 0, len(recs))}
	for _, rec := range recs {
		out.Data = append(out.Data, libraryResponse(rec))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetLibrary(c *echo.Context) error {
	rec, ok := s.lookup(c)
	if !ok {
		return writeNotFound(c, "library not found")
	}
	return c.JSON(http.StatusOK, libraryResponse(rec))
}

func (s *Server) handleDeleteLibrary(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "library not found")
	}
	return c.JSON(http.StatusOK, DeleteResponse{ID: id, Object: "library.deleted", Deleted: true})
}

func (s *Server) handleRawLibrary(c *echo.Context) error {
	rec, ok := s.lookup(c)
	if !ok {
		return writeNotFound(c, "library not found")
	}
	b, err := gm.Encode(rec.Library)
	if err != nil {
		return writeFailure(c, err)
	}
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, b)
}

func (s *Server) handleStrings(c *echo.Context) error {
	rec, ok := s.lookup(c)
	if !ok {
		return writeNotFound(c, "library not found")
	}
	strs := rec.Library.Strings.Strings()
	if strs == nil {
		strs = []gm.StringEntry{}
	}
	return c.JSON(http.StatusOK, StringsResponse{ID: rec.ID, Object: "library.strings", Strings: strs})
}

func (s *Server) handleDisasm(c *echo.Context) error {
	rec, ok := s.lookup(c)
	if !ok {
		return writeNotFound(c, "library not found")
	}
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return writeBadRequest(c, "function index must be an integer")
	}
	lib := rec.Library
	if idx < 0 || idx >= len(lib.Functions) {
		return writeNotFound(c, "function not found")
	}
	name, err := lib.FunctionName(idx)
	if err != nil {
		return writeFailure(c, err)
	}

	out := DisasmResponse{ID: rec.ID, Object: "function.disassembly", Function: idx, Name: name, Instructions: []Instruction{}}
	for in, err := range lib.Disassemble(idx) {
		if err != nil {
			return writeFailure(c, err)
		}
		out.Instructions = append(out.Instructions, Instruction{
			Address: in.Address,
			Opcode:  in.Op.String(),
			Operand: in.Operand,
			Text:    in.Text,
			Line:    in.String(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleMerge(c *echo.Context) error {
	base, ok := s.lookup(c)
	if !ok {
		return writeNotFound(c, "library not found")
	}
	req, err := decodeJSON[MergeRequest](c.Request().Body)
	if err != nil {
		return writeFailure(c, err)
	}
	if req.PatchID == "" {
		return writeBadRequest(c, "patch_id is required")
	}
	patch, ok := s.store.Get(req.PatchID)
	if !ok {
		return writeNotFound(c, "patch library not found")
	}

	opts := gm.MergeOptions{AllowNonASCII: req.AllowNonASCII}
	if req.AppendNew {
		opts.Unmatched = gm.AppendUnmatched
	}
	merged := base.Library.Clone()
	report, err := gm.Merge(merged, patch.Library, opts)
	if err != nil {
		s.log.Warn("merge failed", "base", base.ID, "patch", patch.ID, "error", err)
		return writeFailure(c, err)
	}
	// Results that cannot be encoded are not stored.
	if _, err := gm.Encode(merged); err != nil {
		return writeFailure(c, err)
	}

	rec := s.store.Put(merged, base.Name, base.ID, s.clock())
	s.log.Info("merge stored",
		"id", rec.ID,
		"base", base.ID,
		"patch", patch.ID,
		"merged", len(report.Merged),
		"dropped", len(report.Dropped),
		"appended", len(report.Appended),
	)
	return c.JSON(http.StatusOK, MergeResponse{
		ID:     rec.ID,
		Object: "library.merge",
		Base:   base.ID,
		Patch:  patch.ID,
		Report: report,
	})
}

func (s *Server) lookup(c *echo.Context) (*libraryRecord, bool) {
	id := c.Param("id")
	if id == "" {
		return nil, false
	}
	return s.store.Get(id)
}

func libraryResponse(rec *libraryRecord) LibraryResponse {
	return LibraryResponse{
		ID:        rec.ID,
		Object:    "library",
		Name:      rec.Name,
		Parent:    rec.Parent,
		CreatedAt: rec.CreatedAt.Unix(),
		Info:      gm.Describe(rec.Library),
	}
}
