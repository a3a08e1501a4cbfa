// cookdb-lambda answers cook requests behind a Lambda function URL.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/rsned/cookdb/internal/cooking/catalog"
	"github.com/rsned/cookdb/internal/cooking/engine"
	"github.com/rsned/cookdb/pkg/cooking"
)

const defaultCatalog = "catalog.json"

var jsonHeader = map[string]string{
	"Content-Type": "application/json",
}

type handler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func (h *handler) handle(ctx context.Context, event events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	if m := event.RequestContext.HTTP.Method; m != "" && m != http.MethodPost {
		return errResp(http.StatusMethodNotAllowed, "use POST")
	}

	body := event.Body
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return errResp(http.StatusBadRequest, "invalid base64 body")
		}
		body = string(decoded)
	}

	var req cooking.CookRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return errResp(http.StatusBadRequest, "invalid JSON: "+err.Error())
	}

	resp, err := h.engine.Cook(ctx, req)
	switch {
	case errors.Is(err, engine.ErrUnknownIngredient):
		return errResp(http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrInvalidRequest):
		return errResp(http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("cook failed", "ingredients", req.Ingredients, "error", err)
		return errResp(http.StatusInternalServerError, "internal error")
	}

	respJSON, err := json.Marshal(resp)
	if err != nil {
		return errResp(http.StatusInternalServerError, "internal error")
	}
	return events.LambdaFunctionURLResponse{StatusCode: http.StatusOK, Headers: jsonHeader, Body: string(respJSON)}, nil
}

func errResp(code int, msg string) (events.LambdaFunctionURLResponse, error) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return events.LambdaFunctionURLResponse{StatusCode: code, Headers: jsonHeader, Body: string(body)}, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	path := os.Getenv("COOKDB_CATALOG")
	if path == "" {
		path = defaultCatalog
	}
	cat, err := catalog.Load(path)
	if err != nil {
		logger.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}
	eng, err := engine.New(cat, engine.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	h := &handler{engine: eng, logger: logger}
	lambda.Start(h.handle)
}
