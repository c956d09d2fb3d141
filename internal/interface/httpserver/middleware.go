package httpserver

import (
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jinford/tenant-rag/internal/core/retrieval"
)

const (
	headerPublicKey = "X-Public-Key"
	headerAdminKey  = "X-Admin-Key"
	headerTenantID  = "X-Tenant-Id"
)

// requirePublicKey は公開キーを検証する
// 公開キーが1つも設定されていない場合は素通しする。
func (s *Server) requirePublicKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if len(s.cfg.PublicKeys) == 0 {
			return next(c)
		}
		key := c.Request().Header.Get(headerPublicKey)
		if key == "" || !slices.Contains(s.cfg.PublicKeys, key) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid public key")
		}
		return next(c)
	}
}

// requireAdminKey は管理キーを検証する
// 管理キーが未設定の場合は常に拒否する。
func (s *Server) requireAdminKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.cfg.AdminKey == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "admin key not configured")
		}
		if c.Request().Header.Get(headerAdminKey) != s.cfg.AdminKey {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin key")
		}
		return next(c)
	}
}

// resolveTenant はヘッダー、リクエストボディ、Hostの順にテナントを決める
//
// Host の対応表が設定されていて一致しない場合は拒否する。
// 対応表が空の場合は DefaultTenant にフォールバックする。
func (s *Server) resolveTenant(c echo.Context, bodyTenant string) (string, error) {
	tenant := strings.TrimSpace(c.Request().Header.Get(headerTenantID))
	if tenant == "" {
		tenant = strings.TrimSpace(bodyTenant)
	}
	if tenant == "" {
		host := strings.ToLower(hostOnly(c.Request().Host))
		if mapped, ok := s.cfg.TenantDomains[host]; ok {
			tenant = mapped
		} else if len(s.cfg.TenantDomains) > 0 {
			return "", echo.NewHTTPError(http.StatusBadRequest, "unknown tenant host")
		} else {
			tenant = DefaultTenant
		}
	}

	if err := retrieval.ValidateTenantID(tenant); err != nil {
		return "", err
	}
	return tenant, nil
}

func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}

// requestLogger はリクエストごとに1行のアクセスログを出す
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			s.logger.Info("http request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"duration", time.Since(start),
				"remoteIP", c.RealIP(),
			)
			return nil
		}
	}
}
