package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-realtime/internal/storage"
)

// ObjectReader returns a stored object by key. storage.MemoryStore
// implements it.
type ObjectReader interface {
	Get(key string) (storage.Object, bool)
}

// Media serves images uploaded to the in-process store. It is mounted only
// when no external object store is configured.
//
// @ID          media
// @Summary     Uploaded image (development store)
// @Tags        Media
// @Produce     image/png
// @Param       key  path  string  true  "Object key"
// @Success     200
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /media/{key} [get]
func Media(store ObjectReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		obj, found := store.Get(key)
		if key == "" || !found {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "object not found")
			return
		}
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		c.Data(http.StatusOK, obj.ContentType, obj.Data)
	}
}
