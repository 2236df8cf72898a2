package notify

import (
	"errors"

	"github.com/quietgrove/backoffice/pkg/adminsdk"
	"github.com/quietgrove/backoffice/pkg/idx"
)

// FromError maps a pipeline or API error to one or more error toasts.
// Validation envelopes fan out to one toast per field; everything else
// collapses to a single toast with the best available message. The
// returned IDs are in display-insertion order.
func (c *Center) FromError(err error) []idx.ID {
	if err == nil {
		return nil
	}

	var vErr *adminsdk.ValidationError
	if errors.As(err, &vErr) {
		ids := make([]idx.ID, 0, len(vErr.Errors))
		for _, fe := range vErr.Errors {
			ids = append(ids, c.Error("Validation error", fe.String()))
		}
		return ids
	}

	var netErr *adminsdk.NetworkError
	if errors.As(err, &netErr) {
		return []idx.ID{c.Error("Connection problem", "Unable to reach the server. Check your connection and try again.")}
	}

	var authErr *adminsdk.AuthError
	if errors.As(err, &authErr) {
		return []idx.ID{c.Error("Sign-in failed", authErr.Message)}
	}

	var rfErr *adminsdk.RefreshFailedError
	if errors.Is(err, adminsdk.ErrNoRefreshToken) || errors.As(err, &rfErr) {
		return []idx.ID{c.Warning("Session expired", "Please sign in again.")}
	}

	var apiErr *adminsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return []idx.ID{c.Error("Request failed", apiErr.Message)}
	}

	return []idx.ID{c.Error("Error", GenericErrorMessage)}
}

// Observer adapts a Center to the pipeline's Notifier interface.
type Observer struct {
	center *Center
}

func NewObserver(c *Center) Observer {
	return Observer{center: c}
}

func (o Observer) Failure(err error) {
	o.center.FromError(err)
}

func (o Observer) Success(message string) {
	o.center.Success("", message)
}
