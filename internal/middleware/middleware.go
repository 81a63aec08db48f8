package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const (
	ClientIDHeader = "X-Client-ID"
	callerKey      = "caller"
)

// RateLimiter admits one request per caller every limit. It also
// authenticates the caller: X-Client-ID must carry a hex address.
type RateLimiter struct {
	clients map[common.Address]time.Time
	mu      sync.Mutex
	limit   time.Duration
	now     func() time.Time
}

func NewRateLimiter(limit time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[common.Address]time.Time),
		limit:   limit,
		now:     time.Now,
	}
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetHeader(ClientIDHeader)
		if clientID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-Client-ID header required", "kind": "BadRequest"})
			return
		}
		if !common.IsHexAddress(clientID) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-Client-ID must be a hex address", "kind": "BadRequest"})
			return
		}
		caller := common.HexToAddress(clientID)
		if !r.allow(caller) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "kind": "RateLimited"})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

func (r *RateLimiter) allow(caller common.Address) bool {
	if r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	last, exists := r.clients[caller]
	if exists && now.Sub(last) < r.limit {
		return false
	}
	r.clients[caller] = now
	return true
}

// Caller returns the address authenticated by the middleware.
func Caller(c *gin.Context) common.Address {
	v, _ := c.Get(callerKey)
	addr, _ := v.(common.Address)
	return addr
}
