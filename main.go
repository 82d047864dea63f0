// main.go
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raihanakbr/lokapasar/config"
	"github.com/raihanakbr/lokapasar/endpoint"
	"github.com/raihanakbr/lokapasar/middleware"
	"github.com/raihanakbr/lokapasar/model"
	"github.com/raihanakbr/lokapasar/util"
)

func main() {
	cfg := config.LoadConfig()

	db, err := config.ConnectMySQL()
	if err != nil {
		log.Fatalf("Error connecting to MySQL: %v", err)
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.LoginAttempt{},
		&model.IPBlock{},
		&model.IPBlockEvent{},
		&model.SecurityLog{},
	); err != nil {
		log.Fatalf("Error running migrations: %v", err)
	}

	util.SetSecurityLoggerDB(db)
	util.InitUserIDCache(10000)
	if secret := os.Getenv("JWTSECRET"); secret != "" {
		util.SetJWTSecret(secret)
	}

	// Redis is optional; throttling and session lookups degrade to the DB.
	if _, err := config.ConnectRedis(); err != nil {
		log.Printf("Redis unavailable, continuing without it: %v", err)
	}

	// GeoIP enrichment for the security log is optional as well.
	if geoPath := os.Getenv("GEOIP_DB_PATH"); geoPath != "" {
		if err := util.InitGeoIP(geoPath); err != nil {
			log.Printf("GeoIP database not loaded: %v", err)
		} else {
			defer util.CloseGeoIP()
		}
	}

	gin.SetMode(cfg.GinMode)

	router := gin.Default()
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.DatabaseMiddleware(db))
	router.Use(middleware.EndpointCallLogger())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Welcome to %s!", cfg.AppName),
		})
	})

	router.POST("/signup", endpoint.Signup)
	router.POST("/login", middleware.RateLimiter(middleware.RateLimitConfig{
		Scope:  "login",
		Limit:  30,
		Window: 15 * time.Minute,
	}), endpoint.Login)
	router.GET("/token/validate", endpoint.ValidateToken)

	auth := router.Group("/")
	auth.Use(middleware.ValidateLoginToken())
	{
		auth.DELETE("/logout", endpoint.Logout)
		auth.POST("/verify-password", endpoint.VerifyPassword)
		auth.PATCH("/user", endpoint.UpdateUser)

		userAdmin := auth.Group("/user")
		userAdmin.Use(middleware.RequireStaff())
		{
			userAdmin.GET("", endpoint.ListUsers)
			userAdmin.GET("/:id", endpoint.GetUserInfo)
			userAdmin.PATCH("/:id", endpoint.AdminUpdateUser)
			userAdmin.DELETE("/:id", endpoint.DeleteUser)
		}

		security := auth.Group("/security")
		security.Use(middleware.RequireStaff())
		{
			security.GET("/attempts", endpoint.ListLoginAttempts)
			security.GET("/blocks", endpoint.ListIPBlocks)
			security.GET("/events", endpoint.ListIPEvents)
			security.DELETE("/blocks/:ip", endpoint.UnblockIP)
		}
	}

	address := fmt.Sprintf(":%d", cfg.AppPort)
	if err := router.Run(address); err != nil {
		log.Fatalf("error starting server: %v", err)
	}
}
