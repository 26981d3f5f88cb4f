package http

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

const SessionHeader = "X-Cart-Session"

type sessionKey struct{}

// CartSession attaches the cart session id from X-Cart-Session to the request
// context, minting a new one when the header is missing or malformed. The id is
// echoed back in the response header.
func CartSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.FromString(r.Header.Get(SessionHeader))
		if err != nil || id == uuid.Nil {
			id, err = uuid.NewV4()
			if err != nil {
				log.Error().Err(err).Msg("Failed to generate cart session id")
				respondWithError(w, http.StatusInternalServerError, "Failed to start cart session")
				return
			}
		}

		w.Header().Set(SessionHeader, id.String())
		ctx := context.WithValue(r.Context(), sessionKey{}, id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionID(r *http.Request) string {
	id, _ := r.Context().Value(sessionKey{}).(string)
	return id
}
