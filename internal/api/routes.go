package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ciphergraph/fhevm-dfg/internal/registry"
	"github.com/ciphergraph/fhevm-dfg/internal/store"
)

// APIHandler serves every read-only query endpoint over the store. It is
// the only writer-free consumer of *store.DB described in spec.md §5.
type APIHandler struct {
	db        *store.DB
	wsHub     *Hub
	producers *registry.Registry
}

// SetupRouter builds the Gin engine: CORS, optional bearer auth, a per-IP
// token-bucket rate limiter, and the full read-only endpoint set.
func SetupRouter(db *store.DB, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		db:        db,
		wsHub:     wsHub,
		producers: registry.New(db),
	}

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware())
	v1.Use(NewRateLimiter(60, 10).Middleware())
	{
		v1.GET("/health", handler.handleHealth)
		v1.GET("/dfg/:chainId/:txHash", handler.handleGetDFG)
		v1.GET("/dfg/:chainId/:txHash/deps", handler.handleGetDeps)
		v1.GET("/dfg/:chainId/:txHash/window-depth", handler.handleWindowDepth)
		v1.GET("/rollups/:chainId/opmix", handler.handleOpMixRollup)
		v1.GET("/rollups/:chainId/dependency", handler.handleDependencyRollup)
		v1.GET("/rollups/:chainId/buckets", handler.handleOpBuckets)
		v1.GET("/cycles/:chainId/:blockNumber", handler.handleCycles)
		v1.GET("/signature/:hash/txs", handler.handleSignatureTxs) // optional ?chainId= to scope the lookup
	}

	r.GET("/ws", wsHub.Subscribe)

	return r
}

func parseChainID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("chainId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chainId"})
		return 0, false
	}
	return id, true
}
