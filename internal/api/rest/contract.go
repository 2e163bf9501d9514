package rest

import (
	_ "embed"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var openAPIDocument []byte

// ContractValidator validates HTTP requests and responses against the embedded OpenAPI document.
type ContractValidator struct {
	router routers.Router
}

// Bearer tokens are verified by AuthMiddleware; the document only declares the scheme.
var contractOptions = &openapi3filter.Options{
	AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
}

func NewContractValidator() (*ContractValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create contract router: %w", err)
	}
	return &ContractValidator{router: router}, nil
}

func (cv *ContractValidator) input(req *http.Request) (*openapi3filter.RequestValidationInput, error) {
	route, params, err := cv.router.FindRoute(req)
	if err != nil {
		return nil, fmt.Errorf("no matching route found: %w", err)
	}
	return &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: params,
		Route:      route,
		Options:    contractOptions,
	}, nil
}

// ValidateRequest validates req. The body, if read, is restored for the next reader.
func (cv *ContractValidator) ValidateRequest(req *http.Request) error {
	in, err := cv.input(req)
	if err != nil {
		return err
	}
	if err := openapi3filter.ValidateRequest(req.Context(), in); err != nil {
		return fmt.Errorf("request validation failed: %w", err)
	}
	return nil
}

// ValidateResponse validates a recorded response to req.
func (cv *ContractValidator) ValidateResponse(req *http.Request, status int, header http.Header, body []byte) error {
	in, err := cv.input(req)
	if err != nil {
		return err
	}
	out := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: in,
		Status:                 status,
		Header:                 header,
		Options:                contractOptions,
	}
	out.SetBodyBytes(body)
	if err := openapi3filter.ValidateResponse(req.Context(), out); err != nil {
		return fmt.Errorf("response validation failed: %w", err)
	}
	return nil
}

// Middleware rejects requests the document does not describe with a 400. Requests for
// undocumented routes pass through so the mux can answer them.
func (cv *ContractValidator) Middleware(base *BaseHandler) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			in, err := cv.input(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if err := openapi3filter.ValidateRequest(r.Context(), in); err != nil {
				base.writeError(r.Context(), w, contractViolation(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func contractViolation(err error) *ValidationError {
	var reqErr *openapi3filter.RequestError
	if !stderrors.As(err, &reqErr) {
		return &ValidationError{Message: "Request does not match the API contract"}
	}

	field, reason := "body", reqErr.Reason
	if reqErr.Parameter != nil {
		field = reqErr.Parameter.Name
	}
	var schemaErr *openapi3.SchemaError
	if stderrors.As(err, &schemaErr) {
		if ptr := schemaErr.JSONPointer(); reqErr.Parameter == nil && len(ptr) > 0 {
			field = strings.Join(ptr, ".")
		}
		reason = schemaErr.Reason
	}
	if reason == "" {
		reason = "Invalid value"
	}
	return &ValidationError{
		Message: "Request does not match the API contract",
		Fields:  map[string][]string{field: {reason}},
	}
}

func openAPIHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openAPIDocument)
}
