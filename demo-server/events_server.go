package main

import (
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

type eventsServer struct {
	store cqrs.EventStoreAdapter
}

// ServeHTTP streams the stored events of ?subject= (default "/"),
// ?recursive= widens it to descendants and ?after= skips up to an id.
func (es eventsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subject := q.Get("subject")
	if subject == "" {
		subject = "/"
	}
	recursive := subject == "/"
	if v := q.Get("recursive"); v != "" {
		var err error
		if recursive, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "recursive"))
			return
		}
	}

	ctx := r.Context()
	evs, errc := es.store.StreamEvents(ctx, subject, cqrs.After(q.Get("after"), recursive))
	out := []cqrs.RawEvent{}
	for ev := range evs {
		out = append(out, ev)
	}
	if err := <-errc; err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
