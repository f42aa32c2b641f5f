package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/auth"
	"github.com/viot-io/viot/internal/devicedata"
	"github.com/viot-io/viot/internal/models"
	"gorm.io/gorm"
)

const (
	TotalCountHeader = "X-Total-Count"
)

// Query is the react-admin style list query: sort, filter and range
// are JSON-encoded query parameters.
type Query struct {
	Sort   string `form:"sort"`
	Filter string `form:"filter"`
	Range  string `form:"range"`
}

func (q *Query) GetSort() (string, error) {
	var parts []string
	if err := json.Unmarshal([]byte(q.Sort), &parts); err != nil {
		return "", err
	}
	if len(parts) != 2 {
		return "", fmt.Errorf("too many parts")
	}
	return strings.Join(parts, " "), nil
}

func (q *Query) GetRange() (int, int, error) {
	var parts []int
	if err := json.Unmarshal([]byte(q.Range), &parts); err != nil {
		return 0, 0, err
	}
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("too many parts")
	}
	start := parts[0]
	end := parts[1]
	pageSize := end - start + 1
	return pageSize, start, nil
}

func (q *Query) GetFilter() (map[string]interface{}, error) {
	var parts map[string]interface{}
	if err := json.Unmarshal([]byte(q.Filter), &parts); err != nil {
		return parts, err
	}
	return parts, nil
}

func FilterAndPaginate(model interface{}, c *gin.Context, orderBy string) func(db *gorm.DB) *gorm.DB {
	var query Query
	if err := c.BindQuery(&query); err != nil {
		return func(db *gorm.DB) *gorm.DB {
			db.Error = err
			return db
		}
	}
	return FilterAndPaginateWithQuery(model, c, query, orderBy)
}

func FilterAndPaginateWithQuery(model interface{}, c *gin.Context, query Query, defaultOrderBy string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {

		if order, err := query.GetSort(); err == nil {
			db = db.Order(order)
		} else if defaultOrderBy != "" {
			db = db.Order(defaultOrderBy)
		}

		if filter, err := query.GetFilter(); err == nil {
			db = db.Where(filter)
		}

		if pageSize, offset, err := query.GetRange(); err == nil {
			var totalCount int64
			countDBSession := db.Session(&gorm.Session{Initialized: true})
			res := countDBSession.Model(model).Count(&totalCount)
			if res.Error != nil {
				return db
			}
			c.Header("Access-Control-Expose-Headers", TotalCountHeader)
			c.Header(TotalCountHeader, strconv.Itoa(int(totalCount)))
			db = db.Offset(offset).Limit(pageSize)
		}
		return db
	}
}

// authorizeTeam gates a handler on a permission scope. A user with no
// membership in the team gets a 404 so team ids do not leak; a member
// without the scope gets a 403.
func (api *API) authorizeTeam(c *gin.Context, ctx context.Context, teamID uuid.UUID, scope string) bool {
	userId := api.GetCurrentUserID(c)
	err := api.resolver.Authorize(ctx, userId, teamID, scope)
	if err == nil {
		return true
	}
	if errors.Is(err, auth.ErrAccessDenied) {
		var count int64
		res := api.db.WithContext(ctx).
			Model(&models.UserTeamRole{}).
			Where("user_id = ? AND team_id = ?", userId, teamID).
			Count(&count)
		if res.Error == nil && count == 0 {
			c.JSON(http.StatusNotFound, models.NewNotFoundError("team"))
			return false
		}
		c.JSON(http.StatusForbidden, models.NewNotAllowedError("access denied"))
		return false
	}
	api.SendInternalServerError(c, err)
	return false
}

// sendDeviceDataError maps facade errors onto response codes. Access
// denials are never logged as server errors.
func (api *API) sendDeviceDataError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrAccessDenied):
		c.JSON(http.StatusForbidden, models.NewNotAllowedError("access denied"))
	case errors.Is(err, devicedata.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, models.NewNotFoundError("device"))
	case errors.Is(err, devicedata.ErrScopeNotWritable):
		c.JSON(http.StatusBadRequest, models.NewFieldValidationError("scope", "scope is not writable"))
	case errors.Is(err, models.ErrInvalidValueEncoding):
		c.JSON(http.StatusBadRequest, models.NewFieldValidationError("value", "invalid value encoding"))
	default:
		api.SendInternalServerError(c, err)
	}
}
