package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"
)

const flashCookieName = "flash"

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string // success, info, danger
	Message string
}

func (h *Handlers) setFlash(w http.ResponseWriter, kind, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(kind + "\n" + message)),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash reads and clears the flash cookie.
func (h *Handlers) popFlash(w http.ResponseWriter, r *http.Request) *Flash {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	kind, message, ok := strings.Cut(string(raw), "\n")
	if !ok || message == "" {
		return nil
	}
	switch kind {
	case "success", "info", "danger":
	default:
		kind = "info"
	}
	return &Flash{Kind: kind, Message: message}
}

func (h *Handlers) redirectWithFlash(w http.ResponseWriter, r *http.Request, url, kind, message string) {
	h.setFlash(w, kind, message)
	http.Redirect(w, r, url, http.StatusFound)
}
