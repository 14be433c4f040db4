package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/golab-ledger/internal/core"
	"github.com/JonMunkholm/golab-ledger/internal/logging"
	"github.com/JonMunkholm/golab-ledger/internal/source"
)

// CommitResponse is the body of a commit call. On failure Result holds the
// counters of the rows that were committed before the error.
type CommitResponse struct {
	Result *core.BatchResult `json:"result,omitempty"`
	Error  *ErrorResponse    `json:"error,omitempty"`
}

// handleDryRun classifies an uploaded file and reports what a commit would
// do. Nothing but an audit event is written.
func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	layout, err := core.Lookup(chi.URLParam(r, "layout"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	file, err := s.readUpload(w, r, layout)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	threshold, err := parseDecimalForm(r, "threshold")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx, cancel := s.importContext(r)
	defer cancel()

	logging.FromContext(ctx).Info("dry run requested",
		"layout", layout.Key,
		"rows", len(file.Rows),
		"sheets", file.Sheets,
		"bytes", file.Bytes,
	)

	report, err := s.service.DryRun(ctx, layout, file.Rows, core.DryRunOptions{PriceThreshold: threshold})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleCommit applies an uploaded file, or the from..to slice of its rows.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	layout, err := core.Lookup(chi.URLParam(r, "layout"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	file, err := s.readUpload(w, r, layout)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	opts := core.CommitOptions{}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"batch", &opts.BatchIndex},
		{"from", &opts.From},
		{"to", &opts.To},
	} {
		if *p.dst, err = parseIntForm(r, p.name); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	if opts.PriceThreshold, err = parseDecimalForm(r, "threshold"); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx, cancel := s.importContext(r)
	defer cancel()

	res, err := s.service.Commit(ctx, layout, file.Rows, opts)
	if err != nil {
		if res == nil {
			s.respondError(w, r, err)
			return
		}
		userMsg := core.MapError(err)
		status := statusFor(err, userMsg.Code)
		logging.FromContext(ctx).Error("commit failed",
			"layout", layout.Key,
			"added", res.Added,
			"error", err,
			"code", userMsg.Code,
		)
		writeJSON(w, status, CommitResponse{
			Result: res,
			Error: &ErrorResponse{
				Error:   userMsg.Message,
				Message: userMsg.Message,
				Action:  userMsg.Action,
				Code:    userMsg.Code,
			},
		})
		return
	}
	writeJSON(w, http.StatusOK, CommitResponse{Result: res})
}

// handleCommitStatus reports whether a commit is running in this process.
func (s *Server) handleCommitStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.CommitStatus())
}

// readUpload parses the multipart "file" field into raw rows.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, layout core.Layout) (*source.Result, error) {
	maxSize := s.opts.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, fmt.Errorf("file too large: %w", err)
		}
		return nil, badRequest{msg: "invalid multipart form"}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("no file provided")
	}
	defer file.Close()

	return source.Read(header.Filename, file, layout, source.Options{Sheet: r.FormValue("sheet")})
}

// importContext attaches request metadata and the import timeout.
func (s *Server) importContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := WithRequestMetadata(r.Context(), r)
	if s.opts.ImportTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.ImportTimeout)
	}
	return context.WithCancel(ctx)
}

// parseIntForm reads a non-negative integer form value; empty is zero.
func parseIntForm(r *http.Request, name string) (int, error) {
	v := r.FormValue(name)
	if v == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return 0, badRequest{msg: fmt.Sprintf("%s must be a non-negative integer", name)}
	}
	return i, nil
}

// parseDecimalForm reads a non-negative decimal form value; empty is zero.
func parseDecimalForm(r *http.Request, name string) (decimal.Decimal, error) {
	v := r.FormValue(name)
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.Sign() < 0 {
		return decimal.Zero, badRequest{msg: fmt.Sprintf("%s must be a non-negative number", name)}
	}
	return d, nil
}
