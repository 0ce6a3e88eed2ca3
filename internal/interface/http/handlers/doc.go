// Package handlers contains reusable HTTP building blocks of the leaderboard
// API: readiness checks and middleware.
//
// # Health Checks
//
// Checks run in parallel, each under its own timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v0.1.0")
//	checker.AddCheck("postgres", handlers.PingCheck(db))
//	checker.AddCheck("cache", handlers.PingCheck(memoizer))
//	checker.AddOptionalCheck("skills", handlers.PingCheck(skillsClient))
//
// A failing optional check is reported but keeps the service ready: the local
// scopes still work while the skills service is down.
//
// # Middleware
//
//	auth := handlers.NewAPIKeyAuth(cfg.HTTP.APIKeyHashes, writeError)
//	limiter := handlers.NewIPRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)
//
//	r.Use(handlers.CORSMiddleware(cfg.HTTP.AllowedOrigins))
//	r.Use(limiter.Middleware(tooManyRequests))
//	r.With(auth.Middleware).Get("/leaderboard", ...)
//
// API keys are configured as bcrypt hashes; generate one with
// bcrypt.GenerateFromPassword and put it into HTTP_API_KEY_HASHES.
package handlers
