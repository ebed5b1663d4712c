package api

import (
	"net/http"
	"strings"
	"time"

	"powersched/internal/access"
	"powersched/internal/types"
)

// SaveResponse acknowledges a successful scope save.
type SaveResponse struct {
	Key       string `json:"key"`
	UpdatedAt string `json:"updated_at"`
}

// handleFetch returns the stored state of every requested scope key in one
// round trip. Any authenticated user may fetch: the client needs the full
// picture at startup to diff against, and read filtering happens client-side
// per application grant.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req types.FetchRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"keys must be a non-empty list of scope keys", err))
		return
	}

	items, err := s.store.FetchScopes(r.Context(), req.Keys)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, types.FetchResponse{Items: items})
}

// handleSave replaces the stored state of one scope. The caller must hold
// write permission on the scope's application.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req types.SaveRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"key, user, and timestamp are required", err))
		return
	}

	ts, err := req.ParseTimestamp()
	if err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationBadTimestamp,
			"timestamp must be RFC 3339", err))
		return
	}

	user := UserFromContext(r.Context())
	app := applicationOfKey(req.Key)
	if !access.CanWrite(user, app) {
		if access.CanRead(user, app) {
			Error(w, r, types.NewAppError(types.ErrCodeAccessReadOnly,
				"read-only access to application "+app, nil))
			return
		}
		Error(w, r, types.NewAppError(types.ErrCodeAccessDenied,
			"no access to application "+app, nil))
		return
	}

	if err := s.store.SaveScope(r.Context(), req.Key, req.Data, req.User, ts); err != nil {
		Error(w, r, err)
		return
	}

	s.logger.Info("scope saved",
		"key", req.Key,
		"user", user.ID,
		"hosts", len(req.Data),
	)
	JSON(w, r, http.StatusOK, SaveResponse{Key: req.Key, UpdatedAt: ts.Format(time.RFC3339)})
}

// applicationOfKey extracts the application name from a scope key. Keys are
// "{application}_{environment}" and environment names never contain an
// underscore, so the split happens at the last one.
func applicationOfKey(key string) string {
	if i := strings.LastIndexByte(key, '_'); i >= 0 {
		return key[:i]
	}
	return key
}
