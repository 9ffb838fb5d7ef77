package middleware

import (
	"github.com/chirality-ai/valley/internal/queue"
	"github.com/chirality-ai/valley/pkg/graph"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      int32
	Role        string
	Permissions []string
}

// App holds the process-wide dependencies handed to every request.
//
// Queue, Key and S3 are optional: a nil Queue disables async ingestion, a
// nil Key together with an empty MasterAPIKey disables authentication and a
// nil S3 keeps async payloads inline in the queue message.
type App struct {
	Graph          *graph.GraphClient
	Queue          queue.Publisher
	Key            keyfunc.Keyfunc
	S3             *s3.Client
	MasterAPIKey   string
	MasterUserID   int32
	MasterUserRole string
}

// AuthEnabled reports whether requests must carry credentials.
func (a *App) AuthEnabled() bool {
	return a.Key != nil || a.MasterAPIKey != ""
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
