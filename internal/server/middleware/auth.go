package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	PermIngest = "graph.ingest"
	PermDelete = "graph.delete"
	PermView   = "graph.view"
)

var allPermissions = []string{
	PermIngest,
	PermDelete,
	PermView,
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, map[string]any{"success": false, "error": msg})
}

// AuthMiddleware resolves the caller from a bearer token: the master API key
// or a JWT verified against the JWKS. Without any configured credentials
// every caller is treated as an admin.
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cc := c.(*AppContext)
		app := cc.App

		if !app.AuthEnabled() {
			cc.User = &AppUser{Role: "admin", Permissions: allPermissions}
			return next(cc)
		}

		authHeader := c.Request().Header.Get("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			return unauthorized(c, "Unauthorized")
		}

		// Master API Key bypass
		if app.MasterAPIKey != "" && app.MasterUserID != 0 && app.MasterUserRole != "" && token == app.MasterAPIKey {
			cc.User = &AppUser{
				UserID:      app.MasterUserID,
				Role:        app.MasterUserRole,
				Permissions: allPermissions,
			}
			return next(cc)
		}

		if app.Key == nil {
			return unauthorized(c, "Unauthorized")
		}
		parsed, err := jwt.Parse(token, app.Key.Keyfunc)
		if err != nil || !parsed.Valid {
			return unauthorized(c, "Unauthorized")
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return unauthorized(c, "Unauthorized")
		}

		var userID int64
		if idClaim, ok := claims["id"].(string); ok {
			userID, err = strconv.ParseInt(idClaim, 10, 32)
			if err != nil {
				return unauthorized(c, "Invalid user ID")
			}
		} else if idFloat, ok := claims["id"].(float64); ok {
			userID = int64(idFloat)
		} else {
			return unauthorized(c, "Invalid user ID")
		}

		role := "user"
		if roleClaim, ok := claims["role"].(string); ok {
			role = roleClaim
		}

		var permissions []string
		if permsClaim, ok := claims["permissions"].([]any); ok {
			for _, p := range permsClaim {
				if pStr, ok := p.(string); ok {
					permissions = append(permissions, pStr)
				}
			}
		}

		if role == "admin" && len(permissions) == 0 {
			permissions = allPermissions
		}

		cc.User = &AppUser{
			UserID:      int32(userID),
			Role:        role,
			Permissions: permissions,
		}

		return next(cc)
	}
}
