package workflow

import (
	"context"

	"github.com/mattjoyce/azkit/internal/session"
)

//go:generate mockgen -destination=mocks/mock_dispatcher.go -package=mocks github.com/mattjoyce/azkit/internal/workflow Dispatcher

// Dispatcher sends an authenticated request to the remote service.
// *session.Session implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req session.Request) (*session.Response, error)
}
