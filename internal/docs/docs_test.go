package docs

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cdnCSS    = "https://cdn.example.com/swagger-ui.css"
	cdnBundle = "https://cdn.example.com/swagger-ui-bundle.js"
)

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestMount_Packaged(t *testing.T) {
	app := fiber.New()
	require.NoError(t, Mount(app, "/api/docs", Options{Strategy: AssetsPackaged}))

	status, body := get(t, app, "/api/docs")
	require.Equal(t, fiber.StatusOK, status)
	base := strings.Index(body, `href="`+PackagedBaseCSS+`"`)
	theme := strings.Index(body, `href="`+PackagedCSSPath+`"`)
	require.GreaterOrEqual(t, base, 0)
	require.GreaterOrEqual(t, theme, 0)
	assert.Less(t, base, theme, "theme must load after the base stylesheet")
	assert.Contains(t, body, `src="`+PackagedBundlePath+`"`)
	assert.NotContains(t, body, "cdn")

	status, css := get(t, app, PackagedBaseCSS)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, css, ".swagger-ui .opblock")
	assert.Greater(t, len(css), 10000)

	status, js := get(t, app, PackagedBundlePath)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, js, "SwaggerUIBundle")

	status, themeCSS := get(t, app, PackagedCSSPath)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, themeCSS, ".swagger-ui .topbar")
}

func TestMount_Remote(t *testing.T) {
	app := fiber.New()
	require.NoError(t, Mount(app, "/api/docs", Options{Strategy: AssetsRemote, RemoteCSSURL: cdnCSS, BundleURL: cdnBundle}))

	status, body := get(t, app, "/api/docs")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `href="`+cdnCSS+`"`)
	assert.Contains(t, body, `src="`+cdnBundle+`"`)
	assert.NotContains(t, body, PackagedUIPath)
	assert.NotContains(t, body, PackagedCSSPath)

	status, _ = get(t, app, PackagedBaseCSS)
	assert.Equal(t, fiber.StatusNotFound, status)
	status, _ = get(t, app, PackagedCSSPath)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestMount_RejectsBadOptions(t *testing.T) {
	assert.Error(t, Mount(fiber.New(), "/api/docs", Options{Strategy: AssetsRemote, BundleURL: cdnBundle}))
	assert.Error(t, Mount(fiber.New(), "/api/docs", Options{Strategy: AssetsRemote, RemoteCSSURL: cdnCSS}))
	assert.Error(t, Mount(fiber.New(), "/api/docs", Options{Strategy: "bundled"}))
}

func TestOpenAPIDocument(t *testing.T) {
	app := fiber.New()
	require.NoError(t, Mount(app, "/api/docs", Options{Strategy: AssetsPackaged}))

	status, body := get(t, app, "/api/docs/openapi.json")
	require.Equal(t, fiber.StatusOK, status)

	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	assert.Equal(t, "3.0.3", doc.OpenAPI)
	require.Contains(t, doc.Paths, "/login")
	assert.Contains(t, doc.Paths["/login"], "post")
	assert.Contains(t, doc.Paths, "/pet/{id}")
}
