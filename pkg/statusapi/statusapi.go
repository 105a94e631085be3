// Package statusapi serves sender metrics and the transfer log over HTTP.
package statusapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/skycoin/rdt/internal/httputil"
	"github.com/skycoin/rdt/pkg/transferlog"
)

const requestTimeout = 30 * time.Second

// API exposes a transferlog.Store and a metrics handler.
type API struct {
	store  transferlog.Store
	router chi.Router
}

// New constructs an API. A nil metrics handler leaves /metrics unrouted.
func New(store transferlog.Store, metrics http.Handler) *API {
	api := &API{store: store}

	r := chi.NewRouter()
	r.Use(middleware.Timeout(requestTimeout))

	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/transfers", api.getTransfers())
		r.Get("/transfers/{id}", api.getTransfer())
	})

	api.router = r
	return api
}

// ServeHTTP implements http.Handler
func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.router.ServeHTTP(w, r)
}

func (api *API) getTransfers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := api.store.Entries()
		if err != nil {
			httputil.WriteJSON(w, r, http.StatusInternalServerError, err)
			return
		}
		httputil.WriteJSON(w, r, http.StatusOK, entries)
	}
}

func (api *API) getTransfer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.WriteJSON(w, r, http.StatusBadRequest, errors.New("invalid transfer ID provided"))
			return
		}

		entry, err := api.store.Entry(id)
		switch {
		case errors.Cause(err) == transferlog.ErrNotFound:
			httputil.WriteJSON(w, r, http.StatusNotFound, err)
		case err != nil:
			httputil.WriteJSON(w, r, http.StatusInternalServerError, err)
		default:
			httputil.WriteJSON(w, r, http.StatusOK, entry)
		}
	}
}
