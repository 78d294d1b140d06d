package main

import (
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itsneelabh/gomind-monitoring/ginmonitor"
	"github.com/itsneelabh/gomind-monitoring/instrumentation"
	"github.com/itsneelabh/gomind-monitoring/registry"
)

var errSimulated = errors.New("simulated failure")

// homeController reports its own operations and exceptions through
// source-typed sinks, so they carry the controller's category.
type homeController struct {
	operations instrumentation.SourceOperationsSink[homeController]
	exceptions instrumentation.SourceExceptionsSink[homeController]
}

func newHomeController(reg *registry.Registry) (*homeController, error) {
	ops, err := instrumentation.OperationsFor[homeController](reg)
	if err != nil {
		return nil, err
	}
	exc, err := instrumentation.ExceptionsFor[homeController](reg)
	if err != nil {
		return nil, err
	}
	return &homeController{operations: ops, exceptions: exc}, nil
}

// Index adds two properties to the request operation around some
// simulated work.
func (h *homeController) Index(c *gin.Context) {
	if op, err := ginmonitor.CurrentOperation(c); err == nil {
		_ = op.AddOperationProperty("Greeting", "hello")
		_ = op.AddOperationProperty("UserAgent", c.Request.UserAgent())
	}

	ctx, work := h.operations.StartOperation(c.Request.Context(), "Home.SimulatedWork",
		instrumentation.NewDetail(nil, map[string]float64{"attempt": 1}))
	defer work.Release()

	delay := time.Duration(10+rand.IntN(40)) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
	_ = work.AddOperationMetric("delay_ms", float64(delay.Milliseconds()))

	c.JSON(http.StatusOK, gin.H{"message": "hello"})
}

// Item echoes its route parameter; the parameter is also recorded as
// RouteData[id] on the request operation.
func (h *homeController) Item(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
}

// Fail reports an exception directly and through the gin error chain.
func (h *homeController) Fail(c *gin.Context) {
	h.exceptions.ReportException(c.Request.Context(), errSimulated,
		instrumentation.NewDetail(map[string]string{"Handler": "Fail"}, nil))
	_ = c.Error(errSimulated)
	c.JSON(http.StatusInternalServerError, gin.H{"error": errSimulated.Error()})
}
