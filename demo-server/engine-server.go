package main

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	opentracing "github.com/opentracing/opentracing-go"

	"github.com/retro-framework/cqrskit/commands"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/ctxkey"
	"github.com/retro-framework/cqrskit/framework/engine"
	"github.com/retro-framework/cqrskit/framework/resolver"
)

// HeaderCorrelationID carries the correlation id of a request, one is
// generated when the client sends none.
const HeaderCorrelationID = "X-Correlation-ID"

type engineServer struct {
	e *engine.Engine
	r *resolver.Resolver
}

func (e engineServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	spnApply, ctx := opentracing.StartSpanFromContext(req.Context(), "/apply")
	defer spnApply.Finish()

	correlationID := req.Header.Get(HeaderCorrelationID)
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	spnApply.SetTag("correlation_id", correlationID)
	w.Header().Set(HeaderCorrelationID, correlationID)
	ctx = ctxkey.WithCorrelationID(ctx, correlationID)

	body, err := io.ReadAll(req.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	spnApply.SetTag("payload", string(body))

	cmd, md, err := e.r.Resolve(ctx, body)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if user := req.Header.Get("X-User"); user != "" {
		if _, ok := md[commands.MetadataUser]; !ok {
			md[commands.MetadataUser] = user
		}
	}

	res, err := e.e.Send(ctx, cmd, md)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": res})
}

func statusFor(err error) int {
	var (
		noHandler *engine.NoHandlerError
		violation *engine.SubjectConditionViolation
		infra     engine.Error
		decode    resolver.Error
	)
	switch {
	case errors.As(err, &decode):
		if errors.Is(err, resolver.ErrUnknownCommand) {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case errors.As(err, &noHandler):
		return http.StatusNotFound
	case errors.As(err, &violation), errors.Is(err, cqrs.ErrPreconditionFailed):
		return http.StatusConflict
	case errors.As(err, &infra):
		return http.StatusInternalServerError
	}
	return http.StatusUnprocessableEntity
}
