package handlers

import (
	"log"
	"net/http"

	"github.com/dudin-george/cu-x5-bootcamp/services"

	"github.com/gin-gonic/gin"
)

var statusByKind = map[services.ErrorKind]int{
	services.KindNotFound:      http.StatusNotFound,
	services.KindConflict:      http.StatusConflict,
	services.KindConfiguration: http.StatusUnprocessableEntity,
	services.KindValidation:    http.StatusBadRequest,
	services.KindUnauthorized:  http.StatusUnauthorized,
}

// respondError writes a service error as {"error", "code"} with the status
// its kind maps to. Unclassified errors are logged and reported as 500
// without details.
func respondError(c *gin.Context, err error) {
	kind := services.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": services.KindInternal})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": kind})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": services.KindValidation})
}
