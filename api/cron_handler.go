package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *API) listCrons(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.scheduler.Entries())
}

func (a *API) getCron(w http.ResponseWriter, r *http.Request) {
	entry, err := a.scheduler.Get(chi.URLParam(r, "name"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) enableCron(w http.ResponseWriter, r *http.Request) {
	a.setCronEnabled(w, r, true)
}

func (a *API) disableCron(w http.ResponseWriter, r *http.Request) {
	a.setCronEnabled(w, r, false)
}

func (a *API) setCronEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	name := chi.URLParam(r, "name")
	if err := a.scheduler.SetEnabled(name, enabled); err != nil {
		fail(w, err)
		return
	}
	entry, err := a.scheduler.Get(name)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) deleteCron(w http.ResponseWriter, r *http.Request) {
	if err := a.scheduler.Remove(chi.URLParam(r, "name")); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
