package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/viot-io/viot/internal/models"
)

// ListFeatureFlags lists all feature flags
// @Summary      List Feature Flags
// @Description  Lists all feature flags and whether they are enabled
// @Id           ListFeatureFlags
// @Tags         FFlag
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Failure		 401  {object}  models.BaseError
// @Router       /api/fflags [get]
func (api *API) ListFeatureFlags(c *gin.Context) {
	_, span := tracer.Start(c.Request.Context(), "ListFeatureFlags")
	defer span.End()
	c.JSON(http.StatusOK, api.fflags.ListFlags())
}

// GetFeatureFlag gets a feature flag
// @Summary      Get Feature Flag
// @Description  Gets whether the named feature flag is enabled
// @Id           GetFeatureFlag
// @Tags         FFlag
// @Accept       json
// @Produce      json
// @Param        name  path      string  true  "feature flag name"
// @Success      200  {object}  map[string]bool
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure      404  {object}  models.BaseError
// @Router       /api/fflags/{name} [get]
func (api *API) GetFeatureFlag(c *gin.Context) {
	_, span := tracer.Start(c.Request.Context(), "GetFeatureFlag")
	defer span.End()
	name := c.Param("name")
	enabled, err := api.fflags.GetFlag(name)
	if err != nil {
		c.JSON(http.StatusNotFound, models.NewNotFoundError("fflag"))
		return
	}
	c.JSON(http.StatusOK, map[string]bool{name: enabled})
}
