// CLAUDE:SUMMARY HTTP handlers — enrollment, sessions, revisioned mark sets, snapshot download.
package synchub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/bakharlabs/blurshield/auth"
	"github.com/bakharlabs/blurshield/page"
	"github.com/bakharlabs/blurshield/synchub/internal/store"
)

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// --- enrollment ---

type createAccountRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

func (h *Hub) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Email == "" || len(req.Secret) < 8 {
		jsonErr(w, "email and a secret of at least 8 characters required", http.StatusBadRequest)
		return
	}

	a, err := h.store.CreateAccount(r.Context(), req.Email, req.Secret)
	if errors.Is(err, store.ErrExists) {
		jsonErr(w, "email already enrolled", http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("synchub: account create failed", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("synchub: account enrolled", "account_id", a.ID)
	writeJSON(w, http.StatusCreated, a)
}

type enrollDeviceRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
	Name   string `json:"name"`
}

type enrollDeviceResponse struct {
	DeviceID string `json:"device_id"`
	// DeviceSecret is returned exactly once; the hub stores only its hash.
	DeviceSecret string `json:"device_secret"`
}

func (h *Hub) handleEnrollDevice(w http.ResponseWriter, r *http.Request) {
	var req enrollDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	a, err := h.store.Authenticate(r.Context(), req.Email, req.Secret)
	if errors.Is(err, store.ErrBadCredentials) {
		jsonErr(w, "bad credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("synchub: device enroll auth failed", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}

	d, secret, err := h.store.CreateDevice(r.Context(), a.ID, req.Name)
	if err != nil {
		h.logger.Error("synchub: device create failed", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("synchub: device enrolled", "account_id", a.ID, "device_id", d.ID, "name", d.Name)
	writeJSON(w, http.StatusCreated, enrollDeviceResponse{DeviceID: d.ID, DeviceSecret: secret})
}

// --- sessions ---

type createSessionRequest struct {
	// Account credentials…
	Email  string `json:"email,omitempty"`
	Secret string `json:"secret,omitempty"`
	// …or device credentials.
	DeviceID     string `json:"device_id,omitempty"`
	DeviceSecret string `json:"device_secret,omitempty"`
}

type createSessionResponse struct {
	Token     string `json:"token"`
	AccountID string `json:"account_id"`
	DeviceID  string `json:"device_id,omitempty"`
	Tier      string `json:"tier"`
}

func (h *Hub) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	var claims *auth.Claims
	switch {
	case req.DeviceID != "":
		d, a, err := h.store.AuthenticateDevice(r.Context(), req.DeviceID, req.DeviceSecret)
		if errors.Is(err, store.ErrBadCredentials) {
			jsonErr(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		if err != nil {
			h.logger.Error("synchub: device session failed", "error", err)
			jsonErr(w, "internal error", http.StatusInternalServerError)
			return
		}
		claims = &auth.Claims{AccountID: a.ID, DeviceID: d.ID, Tier: a.Tier}
	case req.Email != "":
		a, err := h.store.Authenticate(r.Context(), req.Email, req.Secret)
		if errors.Is(err, store.ErrBadCredentials) {
			jsonErr(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		if err != nil {
			h.logger.Error("synchub: account session failed", "error", err)
			jsonErr(w, "internal error", http.StatusInternalServerError)
			return
		}
		claims = &auth.Claims{AccountID: a.ID, Tier: a.Tier}
	default:
		jsonErr(w, "account or device credentials required", http.StatusBadRequest)
		return
	}

	token, err := auth.GenerateToken([]byte(h.config.JWTSecret), claims, h.config.SessionTTL)
	if err != nil {
		h.logger.Error("synchub: token generation failed", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, createSessionResponse{
		Token:     token,
		AccountID: claims.AccountID,
		DeviceID:  claims.DeviceID,
		Tier:      claims.Tier,
	})
}

// --- mark sets ---

type markSetPayload struct {
	Identity string          `json:"identity"`
	Revision int64           `json:"revision"`
	Marks    json.RawMessage `json:"marks"`
}

func (h *Hub) handleGetMarks(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	identity, err := page.Identity(r.URL.Query().Get("identity"))
	if err != nil {
		jsonErr(w, "invalid identity", http.StatusBadRequest)
		return
	}

	ms, err := h.store.GetMarkSet(r.Context(), claims.AccountID, identity)
	if err != nil {
		h.logger.Error("synchub: mark set load failed", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	if ms == nil {
		jsonErr(w, "no marks for identity", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, markSetPayload{
		Identity: ms.Identity,
		Revision: ms.Revision,
		Marks:    json.RawMessage(ms.Marks),
	})
}

func (h *Hub) handlePutMarks(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())

	var payload markSetPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		jsonErr(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	identity, err := page.Identity(payload.Identity)
	if err != nil {
		jsonErr(w, "invalid identity", http.StatusBadRequest)
		return
	}

	ms, err := h.store.PutMarkSet(r.Context(), claims.AccountID, identity, payload.Revision, payload.Marks)
	if errors.Is(err, store.ErrRevisionConflict) {
		stored, gerr := h.store.GetMarkSet(r.Context(), claims.AccountID, identity)
		if gerr != nil || stored == nil {
			jsonErr(w, "revision conflict", http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusConflict, markSetPayload{
			Identity: stored.Identity,
			Revision: stored.Revision,
			Marks:    json.RawMessage(stored.Marks),
		})
		return
	}
	if err != nil {
		h.logger.Error("synchub: mark set save failed", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}

	var marks []json.RawMessage
	json.Unmarshal(ms.Marks, &marks)

	if h.notifier != nil {
		ev := RevisionEvent{
			AccountID: claims.AccountID,
			Identity:  ms.Identity,
			Revision:  ms.Revision,
			Marks:     len(marks),
			UpdatedAt: ms.UpdatedAt,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			h.notifier.Notify(ctx, ev)
		}()
	}

	writeJSON(w, http.StatusOK, markSetPayload{
		Identity: ms.Identity,
		Revision: ms.Revision,
		Marks:    json.RawMessage(ms.Marks),
	})
}

func (h *Hub) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, _ = strconv.Atoi(s)
	}

	ids, err := h.store.ListIdentities(r.Context(), claims.AccountID, limit)
	if err != nil {
		h.logger.Error("synchub: identity list failed", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"identities": ids})
}

// --- snapshot mirroring ---

// handleSnapshot streams the configured snapshot database with integrity
// headers. The mirror client verifies both before swapping its cache.
func (h *Hub) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.config.SnapshotPath == "" {
		jsonErr(w, "snapshot serving disabled", http.StatusNotFound)
		return
	}

	f, err := os.Open(h.config.SnapshotPath)
	if err != nil {
		h.logger.Error("synchub: snapshot open failed", "error", err)
		jsonErr(w, "snapshot unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, f)
	if err != nil {
		h.logger.Error("synchub: snapshot hash failed", "error", err)
		jsonErr(w, "snapshot unavailable", http.StatusInternalServerError)
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		jsonErr(w, "snapshot unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("X-Snapshot-Hash", hex.EncodeToString(hash.Sum(nil)))
	w.Header().Set("X-Snapshot-Size", fmt.Sprintf("%d", size))
	io.Copy(w, f)
}
