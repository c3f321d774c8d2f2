package router

import (
	"bookcircle/internal/auth"
	"bookcircle/internal/handlers"
	"bookcircle/internal/middleware"
	"bookcircle/internal/services"

	"github.com/gin-gonic/gin"
)

// Deps is everything the route table needs.
type Deps struct {
	Services        *services.Services
	Authenticator   *auth.Authenticator
	LoginLimiter    middleware.Limiter
	RegisterLimiter middleware.Limiter
	MaxUploadBytes  int64
	SecureCookie    bool
	// MediaDir is served under /media when objects are stored locally.
	MediaDir string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Handlers
	authHandler := handlers.NewAuthHandler(d.Services.Users, d.Authenticator, d.SecureCookie)
	bookHandler := handlers.NewBookHandler(d.Services, d.MaxUploadBytes)
	voteHandler := handlers.NewVoteHandler(d.Services)
	bookmarkHandler := handlers.NewBookmarkHandler(d.Services)
	notificationHandler := handlers.NewNotificationHandler(d.Services)
	userHandler := handlers.NewUserHandler(d.Services, d.MaxUploadBytes)
	adminHandler := handlers.NewAdminHandler(d.Services)

	if d.MediaDir != "" {
		r.Group("/media", middleware.MediaHeaders()).Static("/", d.MediaDir)
	}

	api := r.Group("/api")

	// Public routes
	api.POST("/auth/register", middleware.RateLimit(d.RegisterLimiter, "register"), authHandler.Register)
	api.POST("/auth/login", middleware.RateLimit(d.LoginLimiter, "login"), authHandler.Login)
	api.GET("/auth/verify-email", authHandler.VerifyEmail)

	// Signed-in routes
	authorized := api.Group("")
	authorized.Use(middleware.SessionAuth(d.Authenticator))
	{
		authorized.POST("/auth/logout", authHandler.Logout)
		authorized.GET("/auth/me", authHandler.Me)

		authorized.GET("/books", bookHandler.List)
		authorized.POST("/books", bookHandler.Create)
		authorized.GET("/books/:id", bookHandler.Get)
		authorized.GET("/books/:id/comments", bookHandler.ListComments)
		authorized.POST("/books/:id/comments", bookHandler.CreateComment)
		authorized.POST("/books/:id/upvote", voteHandler.Upvote)
		authorized.POST("/books/:id/bookmark", bookmarkHandler.Toggle)
		authorized.POST("/books/comments/:id/like", voteHandler.LikeComment)

		authorized.GET("/notifications", notificationHandler.List)
		authorized.PUT("/notifications/:id/read", notificationHandler.Read)
		authorized.POST("/notifications/read-all", notificationHandler.ReadAll)
		authorized.DELETE("/notifications/:id", notificationHandler.Delete)

		authorized.GET("/users/me", userHandler.Me)
		authorized.PATCH("/users/me", userHandler.UpdateSettings)
		authorized.PATCH("/users/me/profile-pic", userHandler.UpdateProfilePic)
		authorized.GET("/users/me/activity", userHandler.Activity)
		authorized.GET("/users/me/bookmarks", bookmarkHandler.List)
		authorized.GET("/users/:id", userHandler.Profile)
	}

	// Admin routes
	admin := authorized.Group("")
	admin.Use(middleware.AdminRequired())
	{
		admin.DELETE("/books/:id", bookHandler.Delete)
		admin.GET("/books/comments/all", bookHandler.ListAllComments)
		admin.DELETE("/books/comments/:id", bookHandler.DeleteComment)

		admin.GET("/users", adminHandler.ListUsers)
		admin.PATCH("/users/:id/role", adminHandler.ChangeRole)
		admin.DELETE("/users/:id", adminHandler.DeleteUser)
	}
}
