// Package handlers wires HTTP requests to the service layer and to the
// database. Every error response carries a translated message plus the
// symbolic key so clients can branch without string matching.
package handlers

import (
	"log"

	"souq-backend/apperr"
	"souq-backend/i18n"
	"souq-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func lang(c *gin.Context) string {
	return c.GetString("lang")
}

// respondError maps an application error onto its HTTP status and localized
// message. Internal causes are logged and never serialized.
func respondError(c *gin.Context, err error) {
	appErr := apperr.From(err)
	if appErr.Kind == apperr.KindInternal {
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, appErr)
	}
	body := gin.H{
		"error": i18n.T(lang(c), appErr.Key),
		"key":   appErr.Key,
	}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	c.JSON(appErr.HTTPStatus(), body)
}

// respondBindError translates a gin binding failure into the standard
// validation envelope with a field -> message map.
func respondBindError(c *gin.Context, err error) {
	respondError(c, apperr.Validation("common.validationFailed", utils.ValidationFieldErrors(err)))
}

// respondKey writes the error envelope for statuses outside the application
// error taxonomy (auth failures, blocked accounts).
func respondKey(c *gin.Context, status int, key string) {
	c.JSON(status, gin.H{
		"error": i18n.T(lang(c), key),
		"key":   key,
	})
}

// parseID reads a uuid route parameter, responding not-found under the
// resource's key when it is malformed. A non-uuid id can never name a row,
// so it gets the same answer as a missing one.
func parseID(c *gin.Context, param, notFoundKey string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		respondError(c, apperr.NotFound(notFoundKey))
		return uuid.Nil, false
	}
	return id, true
}

func totalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
