package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/projections"
)

type boardServer struct {
	board *projections.Board
}

func (bs boardServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := mux.Vars(r)["id"]
	if !ok {
		writeJSON(w, http.StatusOK, bs.board.Columns())
		return
	}
	card, found := bs.board.Card(id)
	if !found {
		writeError(w, http.StatusNotFound, errors.Errorf("no task %q on the board", id))
		return
	}
	writeJSON(w, http.StatusOK, card)
}

type searchServer struct {
	search *projections.Search
}

// ServeHTTP answers ?q= with a full text search and ?assignee= with the
// tasks of that person.
func (ss searchServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		q    = r.URL.Query()
		docs []projections.TaskDocument
		err  error
	)
	switch {
	case q.Get("assignee") != "":
		docs, err = ss.search.AssignedTo(r.Context(), q.Get("assignee"))
	case q.Get("q") != "":
		docs, err = ss.search.Find(r.Context(), q.Get("q"))
	default:
		writeError(w, http.StatusBadRequest, errors.New("q or assignee is required"))
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}
