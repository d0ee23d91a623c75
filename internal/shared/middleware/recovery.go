package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"paygate-backend/internal/shared/errcodes"
	"paygate-backend/internal/shared/response"
)

// Recovery converts handler panics into the gateway's error envelope
// instead of dropping the connection mid-payment.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("request_id", c.GetString("request_id")).
					Str("path", c.Request.URL.Path).
					Interface("panic", r).
					Msg("recovered handler panic")

				response.ErrorResponse(c, http.StatusInternalServerError,
					errcodes.InternalError, errcodes.Message(errcodes.InternalError, "en"))
				c.Abort()
			}
		}()

		c.Next()
	}
}
