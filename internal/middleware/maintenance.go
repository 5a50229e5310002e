package middleware

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/luckyshop/server/internal/apperr"
	"github.com/luckyshop/server/internal/model"
	"github.com/luckyshop/server/internal/repo"
)

// Maintenance answers 503 for every request while the maintenance setting is on. Paths in exempt pass.
func Maintenance(settings repo.SettingRepo, exempt ...string) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			value, err := settings.GetValue(r.Context(), model.SettingMaintenance)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				log.Printf("[maintenance] setting lookup failed: %v", err)
			}
			if on, _ := strconv.ParseBool(value); on {
				RespondError(w, apperr.New(apperr.KindMaintenance, "This server is under maintenance. Please try again later."))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
