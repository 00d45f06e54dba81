package http

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/syncsound/syncsound/internal/core"
	"github.com/syncsound/syncsound/internal/domain"
	"github.com/syncsound/syncsound/internal/store"
)

func registerSessionRoutes(api *gin.RouterGroup, st core.Store) {
	// POST /api/sessions — create a listening session; the creator
	// becomes its host.
	api.POST("/sessions", func(c *gin.Context) {
		var req struct {
			Name string `json:"name"`
		}
		if err := c.BindJSON(&req); err != nil || req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid name"})
			return
		}
		host, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "set a display name first"})
			return
		}
		sess, err := st.CreateSession(domain.SessionName(req.Name), host)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
			return
		}
		c.JSON(http.StatusCreated, sess)
	})

	// GET /api/sessions — list sessions.
	api.GET("/sessions", func(c *gin.Context) {
		list, err := st.ListSessions()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list sessions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": list})
	})

	// GET /api/sessions/:id — session document incl. queue and state.
	api.GET("/sessions/:id", func(c *gin.Context) {
		sess, err := st.GetSession(domain.SessionID(c.Param("id")))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load session"})
			return
		}
		c.JSON(http.StatusOK, sess)
	})
}

func registerProfileRoutes(api *gin.RouterGroup) {
	api.GET("/profile", func(c *gin.Context) {
		s := sessions.Default(c)
		name, _ := s.Get("name").(string)
		c.JSON(http.StatusOK, gin.H{
			"id":   c.GetString("client_token"),
			"name": name,
		})
	})

	api.POST("/profile", func(c *gin.Context) {
		var req struct {
			Name string `json:"name"`
		}
		if err := c.BindJSON(&req); err != nil || req.Name == "" || len(req.Name) > domain.MaxDisplayNameLen {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid name"})
			return
		}
		s := sessions.Default(c)
		s.Set("name", req.Name)
		if err := s.Save(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save profile"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.GetString("client_token"), "name": req.Name})
	})
}

func currentUser(c *gin.Context) (domain.UserRef, bool) {
	s := sessions.Default(c)
	name, _ := s.Get("name").(string)
	u, err := domain.NewUserRef(c.GetString("client_token"), name)
	if err != nil {
		return domain.UserRef{}, false
	}
	return u, true
}
