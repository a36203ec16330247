package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"

	"github.com/c0llal0/autosmp/internal/hotplug"
)

// Handler serves the runtime config surface: every governor parameter and
// the enable switch, readable and writable individually. Writes take effect
// from the next tick; toggling enabled is synchronous.
type Handler struct {
	params   *hotplug.ParameterStore
	governor *hotplug.Governor
	logger   logr.Logger
}

func NewHandler(params *hotplug.ParameterStore, governor *hotplug.Governor, logger logr.Logger) *Handler {
	return &Handler{
		params:   params,
		governor: governor,
		logger:   logger,
	}
}

// NewRouter builds the gin engine with all config-surface routes.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", h.health)

	v1 := router.Group("/v1")
	{
		v1.GET("/params", h.listParams)
		v1.GET("/params/:name", h.getParam)
		v1.PUT("/params/:name", h.putParam)
		v1.GET("/enabled", h.getEnabled)
		v1.PUT("/enabled", h.putEnabled)
		v1.GET("/status", h.getStatus)
	}

	return router
}

type paramValue struct {
	Value uint32 `json:"value"`
}

type enabledValue struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listParams(c *gin.Context) {
	values := make(map[string]uint32, len(hotplug.ParamNames()))
	for _, name := range hotplug.ParamNames() {
		value, err := h.params.Get(name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		values[name] = value
	}
	c.JSON(http.StatusOK, values)
}

func (h *Handler) getParam(c *gin.Context) {
	name := c.Param("name")
	value, err := h.params.Get(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "value": value})
}

func (h *Handler) putParam(c *gin.Context) {
	name := c.Param("name")
	if _, err := h.params.Get(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var body paramValue
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value must be an unsigned integer"})
		return
	}

	// rejected writes retain the prior value
	if err := h.params.Set(name, body.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("parameter updated", "name", name, "value", body.Value)
	c.JSON(http.StatusOK, gin.H{"name": name, "value": body.Value})
}

func (h *Handler) getEnabled(c *gin.Context) {
	c.JSON(http.StatusOK, enabledValue{Enabled: h.governor.Enabled()})
}

func (h *Handler) putEnabled(c *gin.Context) {
	var body enabledValue
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled must be a boolean"})
		return
	}

	if err := h.governor.SetEnabled(body.Enabled); err != nil {
		// the toggle itself applied; restoring capacity failed
		h.logger.Error(err, "enable toggle completed with degraded capacity restore")
		c.JSON(http.StatusOK, gin.H{"enabled": body.Enabled, "warning": err.Error()})
		return
	}

	c.JSON(http.StatusOK, enabledValue{Enabled: body.Enabled})
}

func (h *Handler) getStatus(c *gin.Context) {
	status := h.governor.Status()
	c.JSON(http.StatusOK, gin.H{
		"enabled":     status.Enabled,
		"suspended":   status.Suspended,
		"up_streak":   status.UpStreak,
		"down_streak": status.DownStreak,
	})
}
