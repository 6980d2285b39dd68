package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// windowCounter 是单个客户端 IP 在当前时间窗口内的计数。
type windowCounter struct {
	count   int
	resetAt time.Time
}

// RateLimit 返回一个 Gin 中间件，基于客户端 IP 做固定窗口限流。
// 计数器放在进程内存里：服务本身就是单进程、无外部依赖的，
// 限流状态没有理由比看板状态活得更久。
// maxRequests: 窗口内允许的最大请求数；window: 窗口长度。
func RateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	var (
		mu        sync.Mutex
		counters  = make(map[string]*windowCounter)
		lastPrune = time.Now()
	)

	return func(c *gin.Context) {
		// 如果服务在反向代理后面，ClientIP 会参考 X-Forwarded-For
		key := c.ClientIP()
		now := time.Now()

		mu.Lock()
		// 顺手清理过期计数器，避免 map 无限增长
		if now.Sub(lastPrune) > window {
			for ip, w := range counters {
				if now.After(w.resetAt) {
					delete(counters, ip)
				}
			}
			lastPrune = now
		}

		w, ok := counters[key]
		if !ok || now.After(w.resetAt) {
			w = &windowCounter{resetAt: now.Add(window)}
			counters[key] = w
		}
		w.count++
		exceeded := w.count > maxRequests
		mu.Unlock()

		if exceeded {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}

		c.Next()
	}
}
