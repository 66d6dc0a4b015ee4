package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
)

// HeaderAPIKey carries machine-client API keys.
const HeaderAPIKey = "api_key"

// identify resolves the caller from a Bearer token or an API key.
func (h *Handler) identify(r *http.Request) (*auth.Identity, error) {
	if authz := r.Header.Get("Authorization"); authz != "" {
		token, ok := strings.CutPrefix(authz, "Bearer ")
		if !ok || token == "" {
			return nil, auth.ErrUnauthorized
		}
		return h.Auth.ParseToken(token)
	}
	if key := r.Header.Get(HeaderAPIKey); key != "" && h.APIKeys != nil {
		return h.APIKeys.Authenticate(r.Context(), key)
	}
	return nil, auth.ErrUnauthorized
}

type identityHandler func(w http.ResponseWriter, r *http.Request, id *auth.Identity)

// user requires any authenticated caller.
func (h *Handler) user(next identityHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.identify(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		next(w, r.WithContext(auth.WithIdentity(r.Context(), id)), id)
	}
}

// admin requires a caller with the admin role.
func (h *Handler) admin(next identityHandler) http.HandlerFunc {
	return h.user(func(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
		if !id.IsAdmin() {
			fail(w, r, auth.ErrForbidden)
			return
		}
		next(w, r, id)
	})
}

type credentials struct {
	Email    string
	Name     string
	Password string
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, error) {
	var c credentials
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			c.Email, err = d.Str()
		case "name":
			c.Name, err = d.Str()
		case "password":
			c.Password, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return c, err
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.Auth.Register(r.Context(), c.Email, c.Name, c.Password, auth.RoleUser)
	if err != nil {
		fail(w, r, err)
		return
	}
	token, err := h.Auth.IssueToken(u)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeSession(e, token, u.Identity())
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	token, u, err := h.Auth.Login(r.Context(), c.Email, c.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSession(e, token, u.Identity())
	})
}

func (h *Handler) me(w http.ResponseWriter, _ *http.Request, id *auth.Identity) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeIdentity(e, id)
	})
}

func encodeSession(e *jx.Encoder, token string, id *auth.Identity) {
	e.ObjStart()
	e.FieldStart("token")
	e.Str(token)
	e.FieldStart("user")
	encodeIdentity(e, id)
	e.ObjEnd()
}

func encodeIdentity(e *jx.Encoder, id *auth.Identity) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(id.UserID)
	e.FieldStart("email")
	e.Str(id.Email)
	e.FieldStart("name")
	e.Str(id.Name)
	e.FieldStart("role")
	e.Str(string(id.Role))
	e.ObjEnd()
}
