package ginmonitor_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/gomind-monitoring/core"
	"github.com/itsneelabh/gomind-monitoring/ginmonitor"
	"github.com/itsneelabh/gomind-monitoring/httpmonitor"
	"github.com/itsneelabh/gomind-monitoring/instrumentation/instrumentationtest"
)

func setupTestRouter(rec *instrumentationtest.Recorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ginmonitor.ObservableActions(rec))
	router.Use(ginmonitor.ReportErrors(rec))
	return router
}

func getOrder(c *gin.Context) {
	op, err := ginmonitor.CurrentOperation(c)
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	_ = op.AddOperationProperty("Customer", c.Query("customer"))
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
}

func TestObservableActions(t *testing.T) {
	rec := instrumentationtest.NewRecorder()
	router := setupTestRouter(rec)
	router.GET("/stores/:store/orders/:id", getOrder)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stores/s1/orders/o-9?customer=c-42", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	ops := rec.Operations()
	require.Len(t, ops, 1)
	assert.True(t, strings.HasSuffix(ops[0].Name, "ginmonitor_test.getOrder"), ops[0].Name)
	assert.True(t, ops[0].IsReleased())
	assert.Equal(t, map[string]string{
		"RouteData[store]": "s1",
		"RouteData[id]":    "o-9",
		"Customer":         "c-42",
	}, ops[0].Properties())
}

func TestObservableActionsWithoutParams(t *testing.T) {
	rec := instrumentationtest.NewRecorder()
	router := setupTestRouter(rec)
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	ops := rec.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, map[string]string{"RouteData": "[empty]"}, ops[0].Properties())
}

func TestObservableActionsUnmatchedRoute(t *testing.T) {
	rec := instrumentationtest.NewRecorder()
	router := setupTestRouter(rec)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	ops := rec.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, "GET /missing", ops[0].Name)
}

func TestObservableActionsCustomName(t *testing.T) {
	rec := instrumentationtest.NewRecorder()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ginmonitor.ObservableActions(rec, ginmonitor.WithOperationName(func(c *gin.Context) string {
		return c.Request.Method + " " + c.FullPath()
	})))
	router.GET("/orders/:id", func(c *gin.Context) {})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/1", nil))
	require.Len(t, rec.Operations(), 1)
	assert.Equal(t, "GET /orders/:id", rec.Operations()[0].Name)
}

func TestObservableActionsResultExecution(t *testing.T) {
	rec := instrumentationtest.NewRecorder()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ginmonitor.ObservableActions(rec, ginmonitor.WithResultExecution()))

	var before, after interface{}
	router.GET("/orders/:id", func(c *gin.Context) {
		before, _ = ginmonitor.CurrentOperation(c)
		c.String(http.StatusOK, "order %s", c.Param("id"))
		after, _ = ginmonitor.CurrentOperation(c)
	})
	router.GET("/empty", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/7", nil))
	assert.Equal(t, "order 7", w.Body.String())

	ops := rec.Operations()
	require.Len(t, ops, 2)
	assert.Equal(t, ops[0].Name+"::ResultExecution", ops[1].Name)
	assert.Same(t, ops[0], before)
	assert.Same(t, ops[1], after)
	assert.True(t, ops[0].IsReleased())
	assert.True(t, ops[1].IsReleased())

	t.Run("no write, no result operation", func(t *testing.T) {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/empty", nil))
		assert.Len(t, rec.Operations(), 3)
	})
}

func TestCurrentOperationThroughRequestContext(t *testing.T) {
	rec := instrumentationtest.NewRecorder()
	router := setupTestRouter(rec)

	var fromCtx, fromGin interface{}
	router.GET("/", func(c *gin.Context) {
		fromCtx, _ = httpmonitor.CurrentOperation(c.Request.Context())
		fromGin, _ = ginmonitor.CurrentOperation(c)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, fromGin)
	assert.Same(t, fromGin, fromCtx)
}

func TestCurrentOperationOutsideMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	var err error
	router.GET("/", func(c *gin.Context) {
		_, err = ginmonitor.CurrentOperation(c)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.ErrorIs(t, err, core.ErrNotConfigured)
}

func TestReportErrors(t *testing.T) {
	rec := instrumentationtest.NewRecorder()
	router := setupTestRouter(rec)

	failure := errors.New("payment declined")
	router.POST("/pay", func(c *gin.Context) {
		_ = c.Error(failure)
		c.Status(http.StatusPaymentRequired)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pay", nil))
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	exceptions := rec.Exceptions()
	require.Len(t, exceptions, 1)
	assert.Same(t, failure, exceptions[0].Err)
	assert.Equal(t, map[string]string{"Route": "/pay", "Method": http.MethodPost}, exceptions[0].Detail.Properties())
}

func TestTracing(t *testing.T) {
	rec := instrumentationtest.NewRecorder()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ginmonitor.Tracing("test-service"))
	router.Use(ginmonitor.ObservableActions(rec))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, rec.Operations(), 1)
}
