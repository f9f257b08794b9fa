package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDKey = "request_id"

// VerifyProbeTracker slows down identifier guessing against the public
// verification endpoint. Entries expire on a background sweep.
type VerifyProbeTracker struct {
	attempts     map[string]*probeInfo
	mu           sync.RWMutex
	cleanupEvery time.Duration
	maxPerWindow int
}

type probeInfo struct {
	Count       int
	LastAttempt time.Time
	Blocked     bool
}

func NewVerifyProbeTracker() *VerifyProbeTracker {
	tracker := &VerifyProbeTracker{
		attempts:     make(map[string]*probeInfo),
		cleanupEvery: 5 * time.Minute,
		maxPerWindow: 30,
	}

	go tracker.startCleanup()

	return tracker
}

func (t *VerifyProbeTracker) startCleanup() {
	ticker := time.NewTicker(t.cleanupEvery)
	defer ticker.Stop()

	for range ticker.C {
		t.cleanOldEntries()
	}
}

func (t *VerifyProbeTracker) cleanOldEntries() {
	t.mu.Lock()
	defer t.mu.Unlock()

	expiry := time.Now().Add(-time.Minute)
	for ip, info := range t.attempts {
		if info.LastAttempt.Before(expiry) {
			delete(t.attempts, ip)
		}
	}
}

func (t *VerifyProbeTracker) RecordAttempt(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, exists := t.attempts[ip]
	if !exists {
		info = &probeInfo{}
		t.attempts[ip] = info
	}

	info.Count++
	info.LastAttempt = time.Now()

	if info.Count > t.maxPerWindow {
		info.Blocked = true
	}
}

func (t *VerifyProbeTracker) ShouldBlock(ip string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, exists := t.attempts[ip]
	if !exists {
		return false
	}

	return info.Blocked
}

type RequestMiddleware struct {
	logger       *zap.Logger
	probeTracker *VerifyProbeTracker
}

func NewRequestMiddleware(logger *zap.Logger) *RequestMiddleware {
	return &RequestMiddleware{
		logger:       logger,
		probeTracker: NewVerifyProbeTracker(),
	}
}

func (rm *RequestMiddleware) ProcessRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// ThrottleVerification rate-limits the unauthenticated verification route.
func (rm *RequestMiddleware) ThrottleVerification() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		rm.probeTracker.RecordAttempt(clientIP)
		if rm.probeTracker.ShouldBlock(clientIP) {
			rm.logger.Warn("Throttling verification probes",
				zap.String("client_ip", clientIP),
				zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(429, gin.H{
				"status":  "error",
				"message": "Too many verification requests, try again later",
			})
			return
		}
		c.Next()
	}
}

func (rm *RequestMiddleware) RecoverPanic() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString(requestIDKey)
				rm.logger.Error("Panic recovered",
					zap.String(requestIDKey, requestID),
					zap.Any("error", err),
					zap.Stack("stack"))
				c.AbortWithStatusJSON(500, gin.H{
					"status":  "error",
					"message": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
