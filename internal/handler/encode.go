package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/boutique-catalog/internal/domain/product"
)

// timeLayout matches the millisecond ISO-8601 timestamps storefront clients
// already parse.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func writeJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// writeProblem writes {"code","message","details"?}.
func writeProblem(w http.ResponseWriter, code int, message, details string) {
	writeJSON(w, code, encodeProblem(code, message, details, ""))
}

func encodeProblem(code int, message, details, field string) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(code) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		if details != "" {
			e.Field("details", func(e *jx.Encoder) { e.Str(details) })
		}
		if field != "" {
			e.Field("field", func(e *jx.Encoder) { e.Str(field) })
		}
	})
	return e.Bytes()
}

// encodeProduct writes p with both "_id" and "id" so clients written against
// either naming work.
func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("_id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("price", func(e *jx.Encoder) { e.Float64(p.Price.InexactFloat64()) })
		e.Field("brand", func(e *jx.Encoder) { e.Str(p.Brand) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("images", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, url := range p.Images {
					e.Str(url)
				}
			})
		})
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(formatTime(p.CreatedAt)) })
		e.Field("updatedAt", func(e *jx.Encoder) { e.Str(formatTime(p.UpdatedAt)) })
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func productBody(p product.Product) []byte {
	var e jx.Encoder
	encodeProduct(&e, p)
	return e.Bytes()
}

func productsBody(list []product.Product) []byte {
	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for _, p := range list {
			encodeProduct(e, p)
		}
	})
	return e.Bytes()
}
