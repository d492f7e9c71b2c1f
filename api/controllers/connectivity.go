package controllers

import (
	"net/http"

	"github.com/angelmondragon/posync/api/responses"
	"github.com/angelmondragon/posync/api/validators"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/angelmondragon/posync/pkg/logger"
)

type ConnectivitySetter interface {
	IsOnline() bool
	SetOnline(online bool)
}

type connectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}

// ConnectivitySet accepts the host runtime's online/offline signal.
func ConnectivitySet(monitor ConnectivitySetter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if monitor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "connectivity monitor unavailable"))
			return
		}

		var payload connectivityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		monitor.SetOnline(*payload.Online)
		responses.WriteSuccess(w, map[string]bool{"online": monitor.IsOnline()})
	}
}
