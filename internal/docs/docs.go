// Package docs serves the OpenAPI description of the API through Swagger UI.
package docs

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	swaggerFiles "github.com/swaggo/files/v2"
	"gopkg.in/yaml.v3"
)

// AssetStrategy selects where the UI stylesheet and script come from.
type AssetStrategy string

const (
	// AssetsPackaged serves the Swagger UI distribution embedded in the
	// binary, with the service theme layered on top.
	AssetsPackaged AssetStrategy = "packaged"
	// AssetsRemote links the stylesheet and bundle hosted on a CDN.
	AssetsRemote AssetStrategy = "remote"
)

// Paths served by the packaged strategy.
const (
	PackagedUIPath     = "/public/swagger-ui"
	PackagedBaseCSS    = PackagedUIPath + "/swagger-ui.css"
	PackagedBundlePath = PackagedUIPath + "/swagger-ui-bundle.js"
	PackagedCSSPath    = "/public/css/swagger-ui.css"
)

var (
	//go:embed openapi.yaml
	openAPISource []byte

	//go:embed index.html.tmpl
	indexSource string

	//go:embed assets
	assets embed.FS

	indexTmpl = template.Must(template.New("index").Parse(indexSource))
)

// Options configures Mount. RemoteCSSURL and BundleURL are used by AssetsRemote only.
type Options struct {
	Strategy     AssetStrategy
	RemoteCSSURL string
	BundleURL    string
	Title        string
}

type page struct {
	Title       string
	Stylesheets []string
	BundleURL   string
	SpecURL     string
}

// Mount registers the UI at prefix and the JSON document at prefix+"/openapi.json".
// With AssetsPackaged it also serves the embedded stylesheet from app.
func Mount(app *fiber.App, prefix string, opts Options) error {
	spec, err := LoadSpec()
	if err != nil {
		return err
	}

	stylesheets, bundle, err := opts.assets()
	if err != nil {
		return err
	}
	if opts.Strategy == AssetsPackaged {
		theme, err := fs.Sub(assets, "assets")
		if err != nil {
			return err
		}
		app.Use(PackagedUIPath, filesystem.New(filesystem.Config{
			Root:   http.FS(swaggerFiles.FS),
			MaxAge: 3600,
		}))
		app.Use("/public", filesystem.New(filesystem.Config{
			Root:   http.FS(theme),
			MaxAge: 3600,
		}))
	}

	title := opts.Title
	if title == "" {
		title = "Petstore API"
	}

	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, page{
		Title:       title,
		Stylesheets: stylesheets,
		BundleURL:   bundle,
		SpecURL:     prefix + "/openapi.json",
	}); err != nil {
		return fmt.Errorf("render docs page: %w", err)
	}
	html := buf.Bytes()

	app.Get(prefix, func(c *fiber.Ctx) error {
		c.Type("html", "utf-8")
		return c.Send(html)
	})
	app.Get(prefix+"/openapi.json", func(c *fiber.Ctx) error {
		return c.JSON(spec)
	})
	return nil
}

// assets returns the stylesheets, in link order, and the script bundle of the page.
func (o Options) assets() ([]string, string, error) {
	switch o.Strategy {
	case AssetsPackaged:
		return []string{PackagedBaseCSS, PackagedCSSPath}, PackagedBundlePath, nil
	case AssetsRemote:
		if o.RemoteCSSURL == "" || o.BundleURL == "" {
			return nil, "", errors.New("remote asset strategy requires stylesheet and bundle URLs")
		}
		return []string{o.RemoteCSSURL}, o.BundleURL, nil
	default:
		return nil, "", fmt.Errorf("unknown asset strategy %q", o.Strategy)
	}
}

// LoadSpec decodes the embedded OpenAPI document.
func LoadSpec() (map[string]any, error) {
	var spec map[string]any
	if err := yaml.Unmarshal(openAPISource, &spec); err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if _, ok := spec["openapi"]; !ok {
		return nil, errors.New("openapi document has no version field")
	}
	if _, ok := spec["paths"].(map[string]any); !ok {
		return nil, errors.New("openapi document has no paths")
	}
	return spec, nil
}
