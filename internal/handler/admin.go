package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/boutique-catalog/internal/domain/auth"
)

// requireAdmin rejects requests whose x-admin-password header does not match
// before any body is read.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.gate.Check(auth.CredentialFromRequest(r)); err != nil {
			zctx.From(r.Context()).Warn("Admin check failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			writeProblem(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// login answers {"success":true} when the body's password matches.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxLoginBytes))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	password, err := decodePassword(body)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}

	var e jx.Encoder
	if err := h.gate.Check(auth.Credential{Secret: password}); err != nil {
		zctx.From(r.Context()).Warn("Admin login rejected")
		e.Obj(func(e *jx.Encoder) {
			e.Field("success", func(e *jx.Encoder) { e.Bool(false) })
			e.Field("message", func(e *jx.Encoder) { e.Str("Invalid password") })
		})
		writeJSON(w, http.StatusUnauthorized, e.Bytes())
		return
	}

	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
	})
	writeJSON(w, http.StatusOK, e.Bytes())
}

// decodePassword reads the "password" member of a JSON object. A missing or
// non-string password yields "".
func decodePassword(body []byte) (string, error) {
	if len(body) == 0 {
		return "", nil
	}

	var password string
	d := jx.DecodeBytes(body)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "password" || d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		password = v
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "decode login body")
	}
	return password, nil
}
