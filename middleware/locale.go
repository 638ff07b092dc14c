package middleware

import "github.com/gin-gonic/gin"

// LocaleMiddleware resolves the response language for each request: an
// explicit ?lang= query parameter wins over the Accept-Language header.
// The raw value is stored as-is; the i18n layer does the tag matching.
func LocaleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := c.Query("lang")
		if lang == "" {
			lang = c.GetHeader("Accept-Language")
		}
		c.Set("lang", lang)
		c.Next()
	}
}
