package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aungmyo/thazin/internal/db"
	svcErr "github.com/aungmyo/thazin/internal/errors"
	"github.com/aungmyo/thazin/internal/repository"
	"github.com/aungmyo/thazin/internal/service/discovery"
)

// APIError is the JSON error envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler exposes the discovery core over HTTP. Authentication lives in the
// external transport layer, which forwards the caller's identity in the
// X-User-ID header.
type Handler struct {
	svc *discovery.Service
	log *slog.Logger
}

func NewHandler(svc *discovery.Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// profilePayload is the candidate card shape returned to the transport layer.
type profilePayload struct {
	UserID    uint64   `json:"user_id"`
	FullName  string   `json:"full_name"`
	Gender    string   `json:"gender"`
	Age       *int     `json:"age,omitempty"`
	Bio       string   `json:"bio"`
	Region    string   `json:"region"`
	Township  string   `json:"township"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	PhotoID   string   `json:"photo_id"`
	Premium   bool     `json:"premium"`
}

func mapProfile(p *db.Profile, premiumActive bool) profilePayload {
	return profilePayload{
		UserID:    p.UserID,
		FullName:  p.FullName,
		Gender:    p.Gender,
		Age:       p.Age,
		Bio:       p.Bio,
		Region:    p.Region,
		Township:  p.Township,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		PhotoID:   p.PhotoID,
		Premium:   premiumActive,
	}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) NextCandidate(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	candidate, err := h.svc.NextCandidate(r.Context(), viewerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if candidate == nil {
		writeJSON(w, http.StatusOK, struct {
			Exhausted bool `json:"exhausted"`
		}{Exhausted: true})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Exhausted bool           `json:"exhausted"`
		Candidate profilePayload `json:"candidate"`
	}{Candidate: mapProfile(candidate, h.svc.IsPremiumActive(candidate))})
}

func (h *Handler) React(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		TargetID uint64 `json:"target_id"`
		Kind     string `json:"kind"`
	}
	if err := decodeJSON(r, &req); err != nil || req.TargetID == 0 || strings.TrimSpace(req.Kind) == "" {
		writeJSON(w, http.StatusBadRequest, APIError{Code: "VALIDATION_ERROR", Message: "target_id and kind are required"})
		return
	}

	result, err := h.svc.React(r.Context(), actorID, req.TargetID, req.Kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Matched bool `json:"matched"`
	}{Matched: result.Matched})
}

func (h *Handler) Boost(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	delivered, err := h.svc.Boost(r.Context(), actorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Delivered int `json:"delivered"`
	}{Delivered: delivered})
}

func (h *Handler) Rewind(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	target, err := h.svc.Rewind(r.Context(), viewerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Candidate profilePayload `json:"candidate"`
	}{Candidate: mapProfile(target, h.svc.IsPremiumActive(target))})
}

func (h *Handler) IncomingLikes(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	var token *string
	if v := strings.TrimSpace(r.URL.Query().Get("page_token")); v != "" {
		token = &v
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	likers, nextToken, err := h.svc.ListLikedYou(r.Context(), userID, token, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	payload := make([]profilePayload, 0, len(likers))
	for i := range likers {
		payload = append(payload, mapProfile(&likers[i], h.svc.IsPremiumActive(&likers[i])))
	}

	writeJSON(w, http.StatusOK, struct {
		Likers        []profilePayload `json:"likers"`
		NextPageToken *string          `json:"next_page_token,omitempty"`
	}{Likers: payload, NextPageToken: nextToken})
}

// GrantPremium is the admin-facing entry used by the external payment
// approval flow; the acting user id names the beneficiary explicitly.
func (h *Handler) GrantPremium(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uint64 `json:"user_id"`
		Days   int    `json:"days"`
	}
	if err := decodeJSON(r, &req); err != nil || req.UserID == 0 || req.Days <= 0 {
		writeJSON(w, http.StatusBadRequest, APIError{Code: "VALIDATION_ERROR", Message: "user_id and positive days are required"})
		return
	}

	until, err := h.svc.GrantPremiumDays(r.Context(), req.UserID, req.Days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		PremiumUntil time.Time `json:"premium_until"`
	}{PremiumUntil: until})
}

func (h *Handler) EnsureProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		FullName string `json:"full_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: "VALIDATION_ERROR", Message: "invalid request body"})
		return
	}

	profile, err := h.svc.EnsureProfile(r.Context(), userID, req.FullName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mapProfile(profile, h.svc.IsPremiumActive(profile)))
}

func (h *Handler) SaveRegistration(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Language string `json:"language"`
		Gender   string `json:"gender"`
		Seeking  string `json:"seeking"`
		Region   string `json:"region"`
		Township string `json:"township"`
		Age      int    `json:"age"`
		Bio      string `json:"bio"`
		PhotoID  string `json:"photo_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: "VALIDATION_ERROR", Message: "invalid request body"})
		return
	}
	if req.Age < 18 {
		writeJSON(w, http.StatusBadRequest, APIError{Code: "VALIDATION_ERROR", Message: "age must be at least 18"})
		return
	}

	err := h.svc.SaveRegistration(r.Context(), userID, repository.Registration{
		Language: req.Language,
		Gender:   req.Gender,
		Seeking:  req.Seeking,
		Region:   req.Region,
		Township: req.Township,
		Age:      req.Age,
		Bio:      req.Bio,
		PhotoID:  req.PhotoID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: "VALIDATION_ERROR", Message: "invalid request body"})
		return
	}

	if err := h.svc.UpdateLocation(r.Context(), userID, req.Latitude, req.Longitude); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteAccount(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := svcErr.HTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		// the detail goes to the log, never to the client
		h.log.Error("request failed", "path", r.URL.Path, "err", err)
		message = "internal error"
	}
	writeJSON(w, status, APIError{Code: code, Message: message})
}

func userIDFromRequest(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := strings.TrimSpace(r.Header.Get("X-User-ID"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusUnauthorized, APIError{Code: "UNAUTHORIZED", Message: "X-User-ID header is required"})
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
