package middleware

import (
	"carematch/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error attached with c.Error when the handler wrote
// no response of its own.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		errutil.Abort(c, c.Errors.Last().Err)
	}
}
