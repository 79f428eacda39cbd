package server

import (
	"encoding/json"
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"github.com/kurobon/vaultsync/internal/git"
	"github.com/kurobon/vaultsync/internal/git/commands"
	"github.com/kurobon/vaultsync/internal/state"
)

type InitSessionRequest struct {
	Vault string `json:"vault"`
}

type InitSessionResponse struct {
	SessionID string `json:"sessionId"`
	Vault     string `json:"vault"`
	IsRepo    bool   `json:"isRepo"`
}

type CommandRequest struct {
	Vault   string          `json:"vault"`
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

type CommandResponse struct {
	Result any `json:"result"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "pong",
		"system":  "vaultsync",
	})
}

func (s *Server) handleInitSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireJSON(w, r) {
		return
	}

	var req InitSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_arguments", err)
		return
	}
	if req.Vault == "" {
		writeError(w, http.StatusBadRequest, "invalid_arguments", errors.New("vault is required"))
		return
	}

	session, err := s.OpenVault(req.Vault)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_arguments", err)
		return
	}

	writeJSON(w, http.StatusOK, InitSessionResponse{
		SessionID: session.ID,
		Vault:     session.Path,
		IsRepo:    git.IsRepository(session.Path),
	})
}

func (s *Server) handleExecCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireJSON(w, r) {
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_arguments", err)
		return
	}
	if req.Vault == "" || req.Command == "" {
		writeError(w, http.StatusBadRequest, "invalid_arguments", errors.New("vault and command are required"))
		return
	}

	session, ok := s.Sessions.GetSession(req.Vault)
	if !ok {
		var err error
		if session, err = s.OpenVault(req.Vault); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_arguments", err)
			return
		}
	}

	logger.WithFields(logger.Fields{"vault": session.Path, "command": req.Command}).Debug("command received")

	result, err := s.Dispatcher.Dispatch(r.Context(), session, req.Command, req.Args)
	if err != nil {
		writeError(w, statusFor(err), ErrorCode(err), err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Result: result})
}

// OpenVault opens the vault's session and attaches a watcher when watching is
// enabled.
func (s *Server) OpenVault(vault string) (*state.Session, error) {
	session, err := s.Sessions.OpenSession(vault)
	if err != nil {
		return nil, err
	}
	if s.opts.WatchEnabled {
		s.watch(session)
	}
	return session, nil
}

// ErrorCode returns the machine-readable code clients see for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, commands.ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, commands.ErrInvalidArguments):
		return "invalid_arguments"
	}
	return git.ErrorCode(err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, commands.ErrUnknownCommand),
		errors.Is(err, commands.ErrInvalidArguments),
		errors.Is(err, git.ErrPathOutsideRepository),
		errors.Is(err, git.ErrNotAFile),
		errors.Is(err, git.ErrMissingContent):
		return http.StatusBadRequest
	case errors.Is(err, git.ErrNotARepository),
		errors.Is(err, git.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, git.ErrCredentialMissing),
		errors.Is(err, git.ErrCredentialRejected):
		return http.StatusUnauthorized
	case errors.Is(err, git.ErrNetworkFailure):
		return http.StatusBadGateway
	case errors.Is(err, git.ErrDirtyWorkingTree),
		errors.Is(err, git.ErrNotAutomationCommit),
		errors.Is(err, git.ErrAlreadyMerging),
		errors.Is(err, git.ErrNotMerging),
		errors.Is(err, git.ErrConflictsRemain),
		errors.Is(err, git.ErrNonFastForward),
		errors.Is(err, git.ErrNoChanges):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Warn("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}
