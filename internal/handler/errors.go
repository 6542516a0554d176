package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/topup-engine/internal/domain/apperr"
	"github.com/xenking/topup-engine/pkg/httpmiddleware"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:    http.StatusUnprocessableEntity,
	apperr.KindNotFound:      http.StatusNotFound,
	apperr.KindAuthorization: http.StatusForbidden,
	apperr.KindStateConflict: http.StatusConflict,
	apperr.KindTimeout:       http.StatusGatewayTimeout,
	apperr.KindCanceled:      http.StatusServiceUnavailable,
}

// fail writes err as an API error. Domain errors keep their message;
// anything else is logged and reported as an internal error.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errMalformed) {
		httpmiddleware.WriteError(w, http.StatusBadRequest, string(apperr.KindValidation), err.Error())
		return
	}

	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, string(apperr.KindInfrastructure), "internal error")
		return
	}

	msg := apperr.Message(err)
	if msg == "" {
		msg = string(kind)
	}
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Warn("Request aborted", zap.Error(err))
	}
	httpmiddleware.WriteError(w, status, string(kind), msg)
}

func badRequest(w http.ResponseWriter, msg string) {
	httpmiddleware.WriteError(w, http.StatusBadRequest, string(apperr.KindValidation), msg)
}
