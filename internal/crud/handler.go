// Package crud maps REST calls onto an orm.Client. It holds no access rules
// of its own: whatever client GetClient returns for the request decides what
// the caller may see and change.
package crud

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/petstore-api/internal/domain"
	"github.com/spec-kit/petstore-api/internal/orm"
	apperrors "github.com/spec-kit/petstore-api/pkg/util"
)

// ClientFunc builds the data client for one request.
type ClientFunc func(c *fiber.Ctx) orm.Client

// Options configures Mount.
type Options struct {
	// Endpoint is the public URL of the mount point, used for resource links.
	Endpoint  string
	GetClient ClientFunc
}

// Handler serves the CRUD routes.
type Handler struct {
	endpoint  string
	getClient ClientFunc
}

// Mount registers the CRUD routes on r.
func Mount(r fiber.Router, opts Options) *Handler {
	h := &Handler{endpoint: strings.TrimRight(opts.Endpoint, "/"), getClient: opts.GetClient}

	r.Get("/:model", h.List)
	r.Post("/:model", h.Create)
	r.Get("/:model/:id", h.Get)
	r.Patch("/:model/:id", h.Update)
	r.Put("/:model/:id", h.Update)
	r.Delete("/:model/:id", h.Delete)
	return h
}

// List handles GET /:model with optional filter[field]=value query parameters.
func (h *Handler) List(c *fiber.Ctx) error {
	def, err := modelFromPath(c)
	if err != nil {
		return err
	}

	where := orm.Where{}
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		k := string(key)
		if strings.HasPrefix(k, "filter[") && strings.HasSuffix(k, "]") {
			where[k[len("filter["):len(k)-1]] = string(value)
		}
	})

	recs, err := h.getClient(c).FindMany(c.UserContext(), def.Name, where)
	if err != nil {
		return mapError(def, err)
	}
	return c.JSON(fiber.Map{
		"data":  recs,
		"links": fiber.Map{"self": h.link(def.Name, "")},
	})
}

// Get handles GET /:model/:id.
func (h *Handler) Get(c *fiber.Ctx) error {
	def, err := modelFromPath(c)
	if err != nil {
		return err
	}
	id := c.Params("id")

	rec, err := h.getClient(c).FindFirst(c.UserContext(), def.Name, orm.Where{domain.FieldID: id})
	if err != nil {
		return mapError(def, err)
	}
	return h.single(c, http.StatusOK, def, rec)
}

// Create handles POST /:model.
func (h *Handler) Create(c *fiber.Ctx) error {
	def, err := modelFromPath(c)
	if err != nil {
		return err
	}
	data, err := decodeBody(c)
	if err != nil {
		return err
	}

	rec, err := h.getClient(c).Create(c.UserContext(), def.Name, data)
	if err != nil {
		return mapError(def, err)
	}
	return h.single(c, http.StatusCreated, def, rec)
}

// Update handles PATCH and PUT /:model/:id.
func (h *Handler) Update(c *fiber.Ctx) error {
	def, err := modelFromPath(c)
	if err != nil {
		return err
	}
	data, err := decodeBody(c)
	if err != nil {
		return err
	}

	rec, err := h.getClient(c).Update(c.UserContext(), def.Name, c.Params("id"), data)
	if err != nil {
		return mapError(def, err)
	}
	return h.single(c, http.StatusOK, def, rec)
}

// Delete handles DELETE /:model/:id.
func (h *Handler) Delete(c *fiber.Ctx) error {
	def, err := modelFromPath(c)
	if err != nil {
		return err
	}
	if err := h.getClient(c).Delete(c.UserContext(), def.Name, c.Params("id")); err != nil {
		return mapError(def, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) single(c *fiber.Ctx, status int, def domain.ModelDef, rec domain.Record) error {
	return c.Status(status).JSON(fiber.Map{
		"data":  rec,
		"links": fiber.Map{"self": h.link(def.Name, rec.String(domain.FieldID))},
	})
}

func (h *Handler) link(model domain.Model, id string) string {
	if id == "" {
		return h.endpoint + "/" + string(model)
	}
	return h.endpoint + "/" + string(model) + "/" + id
}

func modelFromPath(c *fiber.Ctx) (domain.ModelDef, error) {
	name := c.Params("model")
	def, ok := domain.Lookup(name)
	if !ok {
		return domain.ModelDef{}, apperrors.NewNotFound("model "+name, nil)
	}
	return def, nil
}

func decodeBody(c *fiber.Ctx) (domain.Record, error) {
	var data domain.Record
	if err := json.Unmarshal(c.Body(), &data); err != nil || data == nil {
		return nil, apperrors.NewValidationError("request body must be a JSON object", nil)
	}
	return data, nil
}

func mapError(def domain.ModelDef, err error) error {
	switch {
	case errors.Is(err, orm.ErrNotFound), errors.Is(err, orm.ErrUnknownModel):
		return apperrors.NewNotFound(string(def.Name), nil)
	case errors.Is(err, orm.ErrDenied):
		return apperrors.NewForbidden("operation not allowed")
	case errors.Is(err, orm.ErrInvalidField):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, orm.ErrConflict):
		return apperrors.NewConflict(string(def.Name)+" already exists", nil)
	default:
		return apperrors.NewInternalError(err)
	}
}
