package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/product"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Products.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			h.encodeProduct(e, p)
		}
		e.ArrEnd()
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(e, *p)
	})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	h.saveProduct(w, r, "", http.StatusCreated)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	id := r.PathValue("id")
	if _, err := h.Products.GetByID(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	h.saveProduct(w, r, id, http.StatusOK)
}

// saveProduct decodes a full product and upserts it. A non-empty id
// overrides the one in the body.
func (h *Handler) saveProduct(w http.ResponseWriter, r *http.Request, id string, status int) {
	p, err := decodeProduct(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if id != "" {
		p.ID = id
	}
	if p.ID == "" {
		fail(w, r, invalid("product id is required"))
		return
	}
	if err := p.Validate(); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Products.Upsert(r.Context(), &p); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		h.encodeProduct(e, p)
	})
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	if err := h.Products.Delete(r.Context(), r.PathValue("id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeProduct(w http.ResponseWriter, r *http.Request) (product.Product, error) {
	var p product.Product
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "price":
			p.Price, err = decodeDecimal(d)
		case "discountPercent":
			p.DiscountPercent, err = decodeDecimal(d)
		case "category":
			p.Category, err = d.Str()
		case "stock":
			p.Stock, err = d.Int()
		case "shippingCost":
			p.ShippingCost, err = decodeDecimal(d)
		case "image":
			p.Image, err = d.Str()
		case "images":
			p.Images, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return p, err
}

// imageURL prefixes relative image paths with the configured base URL.
func (h *Handler) imageURL(path string) string {
	if path == "" || h.cfg.ImageBaseURL == "" ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(h.cfg.ImageBaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	money(e, "price", p.Price)
	percent(e, "discountPercent", p.DiscountPercent)
	money(e, "netPrice", p.NetPrice())
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("stock")
	e.Int(p.Stock)
	money(e, "shippingCost", p.ShippingCost)
	e.FieldStart("image")
	e.Str(h.imageURL(p.Image))
	e.FieldStart("images")
	e.ArrStart()
	for _, img := range p.Images {
		e.Str(h.imageURL(img))
	}
	e.ArrEnd()
	e.ObjEnd()
}
