package membersvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mkrupp/memberfed/internal/domain"
	context_ "github.com/mkrupp/memberfed/internal/infra/context"
	"github.com/mkrupp/memberfed/internal/infra/logging"
	http_ "github.com/mkrupp/memberfed/internal/infra/transport/http"
)

var (
	// ErrNoValue is returned when an attribute write carries no value.
	ErrNoValue = errors.New("no value")
	// ErrRejected is returned when the member service declines an operation.
	ErrRejected = errors.New("rejected")
	// ErrBadPaging is returned for non-numeric paging parameters.
	ErrBadPaging = errors.New("bad paging parameter")
	// ErrUnmappedAttribute is returned for attributes not backed by a column.
	// The identity host keeps those in its own storage.
	ErrUnmappedAttribute = errors.New("attribute not mapped")
)

// HTTPTransportConfig contains configuration parameters for the HTTP transport layer.
type HTTPTransportConfig struct {
	http_.HTTPTransportConfig

	// MetricsPath serves the Prometheus registry when non-empty
	MetricsPath string `env:"METRICS_PATH" default:"/metrics"`
}

// MemberView is the JSON form of a member handed to the identity host.
type MemberView struct {
	ID               string              `json:"id"`
	Username         string              `json:"username"`
	Email            string              `json:"email,omitempty"`
	FirstName        string              `json:"firstName,omitempty"`
	LastName         string              `json:"lastName,omitempty"`
	EmailVerified    bool                `json:"emailVerified"`
	CreatedTimestamp *int64              `json:"createdTimestamp,omitempty"`
	Attributes       map[string][]string `json:"attributes"`
}

// NewMemberView renders an adapter.
func NewMemberView(ctx context.Context, a *MemberAdapter) MemberView {
	view := MemberView{
		ID:               a.ID(),
		Username:         a.Username(),
		Email:            a.Email(),
		FirstName:        a.FirstName(),
		LastName:         a.LastName(),
		EmailVerified:    a.EmailVerified(),
		CreatedTimestamp: nil,
		Attributes:       a.Attributes(ctx),
	}

	if created, ok := a.CreatedTimestamp(); ok {
		view.CreatedTimestamp = &created
	}

	return view
}

// HTTPTransport exposes the member service to identity hosts.
type HTTPTransport struct {
	memberSvc *MemberService
	log       logging.Logger
	cfg       HTTPTransportConfig
	mux       *http.ServeMux
}

// NewHTTPTransport creates a new HTTPTransport. metrics, if non-nil, is served
// on cfg.MetricsPath.
func NewHTTPTransport(
	memberSvc *MemberService,
	cfg HTTPTransportConfig,
	metrics http.Handler,
) *HTTPTransport {
	ht := &HTTPTransport{
		memberSvc: memberSvc,
		log:       logging.GetLogger("svc.membersvc.http_transport"),
		cfg:       cfg,
		mux:       http.NewServeMux(),
	}

	ht.mux.HandleFunc("GET /members", ht.HandleQuery)
	ht.mux.HandleFunc("POST /members", ht.HandleRegister)
	ht.mux.HandleFunc("GET /members/count", ht.HandleCount)
	ht.mux.HandleFunc("GET /members/{id}", ht.HandleGet)
	ht.mux.HandleFunc("DELETE /members/{id}", ht.HandleRemove)
	ht.mux.HandleFunc("GET /members/{id}/attributes/{name}", ht.HandleGetAttribute)
	ht.mux.HandleFunc("PUT /members/{id}/attributes/{name}", ht.HandleSetAttribute)
	ht.mux.HandleFunc("DELETE /members/{id}/attributes/{name}", ht.HandleRemoveAttribute)
	ht.mux.HandleFunc("GET /members/{id}/credentials/{type}", ht.HandleConfigured)
	ht.mux.HandleFunc("POST /members/{id}/credentials/validate", ht.HandleValidate)
	ht.mux.HandleFunc("PUT /members/{id}/credentials", ht.HandleUpdateCredential)

	if metrics != nil && cfg.MetricsPath != "" {
		ht.mux.Handle("GET "+cfg.MetricsPath, metrics)
	}

	return ht
}

// ServeHTTP implements http.Handler:
// - GET /members: list or search (username, email, search, first, max)
// - POST /members: registration, always refused
// - GET /members/count: member count
// - GET|DELETE /members/{id}: fetch or remove a member
// - GET|PUT|DELETE /members/{id}/attributes/{name}: read or write one mapped attribute
// - GET /members/{id}/credentials/{type}: whether a credential is configured
// - POST /members/{id}/credentials/validate: verify a password
// - PUT /members/{id}/credentials: replace the password.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.mux.ServeHTTP(w, r)
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

func (ht *HTTPTransport) requestLog(r *http.Request) logging.Logger {
	return ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.Path))
}

// memberContext tags the request context with the addressed member.
func memberContext(r *http.Request) (context.Context, string) {
	id := r.PathValue("id")

	return context_.WithMemberID(r.Context(), id), id
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	return nil
}

func httpError(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

// mappedAttribute answers 409 for attribute names without a column.
func mappedAttribute(w http.ResponseWriter, name string) error {
	if IsMapped(name) {
		return nil
	}

	http.Error(w, ErrUnmappedAttribute.Error(), http.StatusConflict)

	return fmt.Errorf("%w: %s", ErrUnmappedAttribute, name)
}

// HandleGet returns one member.
func (ht *HTTPTransport) HandleGet(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleGet(w, r)
}

func (ht *HTTPTransport) handleGet(w http.ResponseWriter, r *http.Request) (err error) {
	ctx, id := memberContext(r)
	log := ht.requestLog(r)

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "get member failed", "error", err)
		}
	}()

	a, ok := ht.memberSvc.MemberByID(ctx, id)
	if !ok {
		httpError(w, http.StatusNotFound)

		return nil
	}

	return writeJSON(w, http.StatusOK, NewMemberView(ctx, a))
}

// HandleQuery lists or searches members.
func (ht *HTTPTransport) HandleQuery(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleQuery(w, r)
}

func (ht *HTTPTransport) handleQuery(w http.ResponseWriter, r *http.Request) (err error) {
	ctx := r.Context()
	log := ht.requestLog(r)

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "query members failed", "error", err)
		}
	}()

	query := r.URL.Query()

	first, err := intParam(query.Get("first"), 0)
	if err != nil {
		httpError(w, http.StatusBadRequest)

		return err
	}

	limit, err := intParam(query.Get("max"), -1)
	if err != nil {
		httpError(w, http.StatusBadRequest)

		return err
	}

	params := make(map[string]string)

	for _, key := range []string{ParamUsername, ParamEmail, ParamSearch} {
		if query.Has(key) {
			params[key] = query.Get(key)
		}
	}

	adapters := ht.memberSvc.SearchByParams(ctx, params, first, limit)

	views := make([]MemberView, 0, len(adapters))
	for _, a := range adapters {
		views = append(views, NewMemberView(ctx, a))
	}

	return writeJSON(w, http.StatusOK, views)
}

func intParam(text string, fallback int) (int, error) {
	if text == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadPaging, text)
	}

	return n, nil
}

// HandleCount returns the member count.
func (ht *HTTPTransport) HandleCount(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleCount(w, r)
}

func (ht *HTTPTransport) handleCount(w http.ResponseWriter, r *http.Request) (err error) {
	defer func(ctx context.Context) {
		if err != nil {
			ht.requestLog(r).ErrorContext(ctx, "count members failed", "error", err)
		}
	}(r.Context())

	return writeJSON(w, http.StatusOK, map[string]int{"count": ht.memberSvc.Count(r.Context())})
}

// HandleRegister refuses member registration.
func (ht *HTTPTransport) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if _, ok := ht.memberSvc.AddMember(r.Context(), r.FormValue("username")); !ok {
		httpError(w, http.StatusNotImplemented)
	}
}

// HandleRemove deletes a member.
func (ht *HTTPTransport) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx, id := memberContext(r)

	if !ht.memberSvc.RemoveMember(ctx, id) {
		httpError(w, http.StatusNotFound)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleGetAttribute returns the values of one attribute.
func (ht *HTTPTransport) HandleGetAttribute(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleGetAttribute(w, r)
}

func (ht *HTTPTransport) handleGetAttribute(w http.ResponseWriter, r *http.Request) (err error) {
	ctx, id := memberContext(r)
	log := ht.requestLog(r)

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "get attribute failed", "error", err)
		}
	}()

	name := r.PathValue("name")
	if err := mappedAttribute(w, name); err != nil {
		log.DebugContext(ctx, "attribute left to host", "attribute", name)

		return nil
	}

	a, ok := ht.memberSvc.MemberByID(ctx, id)
	if !ok {
		httpError(w, http.StatusNotFound)

		return nil
	}

	values := a.Attribute(ctx, name)
	if values == nil {
		values = []string{}
	}

	return writeJSON(w, http.StatusOK, values)
}

// HandleSetAttribute writes a mapped attribute from the first form value "value".
// Unmapped names are answered with 409.
func (ht *HTTPTransport) HandleSetAttribute(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleSetAttribute(w, r)
}

func (ht *HTTPTransport) handleSetAttribute(w http.ResponseWriter, r *http.Request) (err error) {
	ctx, id := memberContext(r)
	name := r.PathValue("name")
	log := ht.requestLog(r).With("attribute", name)

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "set attribute failed", "error", err)
		} else {
			log.DebugContext(ctx, "attribute set")
		}
	}()

	if err := mappedAttribute(w, name); err != nil {
		return err
	}

	if err := r.ParseForm(); err != nil {
		httpError(w, http.StatusBadRequest)

		return fmt.Errorf("parse form: %w", err)
	}

	values := r.Form["value"]
	if len(values) == 0 {
		httpError(w, http.StatusBadRequest)

		return ErrNoValue
	}

	a, ok := ht.memberSvc.MemberByID(ctx, id)
	if !ok {
		httpError(w, http.StatusNotFound)

		return domain.ErrMemberNotFound
	}

	if !a.SetAttribute(ctx, name, values) {
		httpError(w, http.StatusUnprocessableEntity)

		return ErrRejected
	}

	return writeJSON(w, http.StatusOK, NewMemberView(ctx, a))
}

// HandleRemoveAttribute clears a mapped attribute.
func (ht *HTTPTransport) HandleRemoveAttribute(w http.ResponseWriter, r *http.Request) {
	ctx, id := memberContext(r)
	name := r.PathValue("name")

	if err := mappedAttribute(w, name); err != nil {
		return
	}

	a, ok := ht.memberSvc.MemberByID(ctx, id)
	if !ok {
		httpError(w, http.StatusNotFound)

		return
	}

	if !a.RemoveAttribute(ctx, name) {
		httpError(w, http.StatusUnprocessableEntity)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleConfigured answers 204 if the member has a credential of the given type.
func (ht *HTTPTransport) HandleConfigured(w http.ResponseWriter, r *http.Request) {
	ctx, id := memberContext(r)

	if !ht.memberSvc.IsConfiguredFor(ctx, id, r.PathValue("type")) {
		httpError(w, http.StatusNotFound)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleValidate verifies a credential.
// Expects form parameters: type (default "password"), value.
func (ht *HTTPTransport) HandleValidate(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleValidate(w, r)
}

func (ht *HTTPTransport) handleValidate(w http.ResponseWriter, r *http.Request) (err error) {
	ctx, id := memberContext(r)
	log := ht.requestLog(r)

	defer func() {
		if err != nil {
			log.InfoContext(ctx, "credential validation failed", "error", err)
		}
	}()

	input, err := credentialForm(r)
	if err != nil {
		httpError(w, http.StatusBadRequest)

		return err
	}

	if !ht.memberSvc.ValidCredential(ctx, id, input) {
		httpError(w, http.StatusUnauthorized)

		return domain.ErrInvalidCredentials
	}

	w.WriteHeader(http.StatusNoContent)

	return nil
}

// HandleUpdateCredential replaces a credential.
// Expects form parameters: type (default "password"), value.
func (ht *HTTPTransport) HandleUpdateCredential(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleUpdateCredential(w, r)
}

func (ht *HTTPTransport) handleUpdateCredential(w http.ResponseWriter, r *http.Request) (err error) {
	ctx, id := memberContext(r)
	log := ht.requestLog(r)

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "credential update failed", "error", err)
		} else {
			log.InfoContext(ctx, "credential updated")
		}
	}()

	input, err := credentialForm(r)
	if err != nil {
		httpError(w, http.StatusBadRequest)

		return err
	}

	if !ht.memberSvc.SupportsCredentialType(input.Type) {
		httpError(w, http.StatusBadRequest)

		return domain.ErrUnsupportedCredentialType
	}

	if !ht.memberSvc.UpdateCredential(ctx, id, input) {
		httpError(w, http.StatusUnprocessableEntity)

		return ErrRejected
	}

	w.WriteHeader(http.StatusNoContent)

	return nil
}

func credentialForm(r *http.Request) (domain.Credential, error) {
	if err := r.ParseForm(); err != nil {
		return domain.Credential{}, fmt.Errorf("parse form: %w", err)
	}

	input := domain.Credential{
		Type:  r.FormValue("type"),
		Value: r.FormValue("value"),
	}

	if input.Type == "" {
		input.Type = domain.CredentialTypePassword
	}

	if input.Value == "" {
		return domain.Credential{}, ErrNoValue
	}

	return input, nil
}
