package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterSetupAppliesGroupMiddleware(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	g := NewDomainGroup("budgets", "/budgets")
	g.GET("/:id", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("actor")+":"+c.Param("id"))
	})
	r.Register(g).Setup(func(c *gin.Context) {
		c.Set("actor", "cfo")
		c.Next()
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/budgets/dm_FY-2025-26", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cfo:dm_FY-2025-26", w.Body.String())
}

func TestDomainGroup(t *testing.T) {
	t.Run("creates group with name and prefix", func(t *testing.T) {
		g := NewDomainGroup("budgets", "/budgets")
		assert.Equal(t, "budgets", g.Name())
		assert.Equal(t, "/budgets", g.Prefix())
	})

	t.Run("static and parameter routes share a prefix", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("budgets", "/budgets").
			POST("/expenses/bulk", func(c *gin.Context) { c.String(http.StatusOK, "bulk") }).
			POST("/:id/activate", func(c *gin.Context) { c.String(http.StatusOK, "activate "+c.Param("id")) })
		g.RegisterRoutes(engine.Group("/api/v1"))

		for path, body := range map[string]string{
			"/api/v1/budgets/expenses/bulk":          "bulk",
			"/api/v1/budgets/hr_FY-2025-26/activate": "activate hr_FY-2025-26",
		} {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
			assert.Equal(t, http.StatusOK, w.Code, path)
			assert.Equal(t, body, w.Body.String())
		}
	})

	t.Run("applies middleware", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("test", "/test")
		g.Use(func(c *gin.Context) {
			c.Header("X-Test-Middleware", "applied")
			c.Next()
		})
		g.GET("/items", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/items", nil))
		assert.Equal(t, "applied", w.Header().Get("X-Test-Middleware"))
	})

	t.Run("creates subgroups", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("purchasing", "/purchasing")
		g.Group("intents", "/intents").GET("", func(c *gin.Context) {
			c.String(http.StatusOK, "intents")
		})
		g.Group("orders", "/orders").GET("", func(c *gin.Context) {
			c.String(http.StatusOK, "orders")
		})
		g.RegisterRoutes(engine.Group("/api/v1"))

		for _, name := range []string{"intents", "orders"} {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/purchasing/"+name, nil))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, name, w.Body.String())
		}
	})
}
