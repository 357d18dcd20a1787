// Command inspect serves a read-only REST browser over the store, for
// poking at ingested documents without an MCP client: documents,
// endpoints, schemas and the schema-endpoint cross-reference map.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"openapi-mcp/internal/config"
	apperrors "openapi-mcp/internal/errors"
	"openapi-mcp/internal/logging"
	"openapi-mcp/internal/store"
)

const endpointPageSize = 100

func main() {
	addr := flag.String("addr", "localhost:8091", "listen address")
	dbPath := flag.String("db", "", "sqlite database path (overrides OPENAPI_MCP_STORE_PATH)")
	flag.Parse()

	if err := run(*addr, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, dbPath string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = dbPath
	}

	logger := logging.NewTextLogger(logging.ParseLogLevel(cfg.Logging.Level))
	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	browser := &browser{
		store:  store.NewRetryableFromConfig(st, cfg.Store),
		logger: logger.WithComponent("inspect"),
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           browser.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("store browser listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type browser struct {
	store  store.Store
	logger logging.Logger
}

func (b *browser) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", b.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/stats", b.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/documents", b.handleDocuments).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id:[0-9]+}", b.handleDocument).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id:[0-9]+}/endpoints", b.handleEndpoints).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id:[0-9]+}/schemas", b.handleSchemas).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id:[0-9]+}/schemas/{name}", b.handleSchema).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id:[0-9]+}/security", b.handleSecuritySchemes).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id:[0-9]+}/refs", b.handleReferenceEdges).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id:[0-9]+}/xrefs", b.handleCrossReferences).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b.writeError(w, http.StatusNotFound, fmt.Sprintf("no route for %s", req.URL.Path))
	})
	return r
}

func (b *browser) handleIndex(w http.ResponseWriter, _ *http.Request) {
	b.writeJSON(w, http.StatusOK, map[string]interface{}{
		"routes": []string{
			"/stats",
			"/documents",
			"/documents/{id}",
			"/documents/{id}/endpoints",
			"/documents/{id}/schemas",
			"/documents/{id}/schemas/{name}",
			"/documents/{id}/security",
			"/documents/{id}/refs",
			"/documents/{id}/xrefs",
		},
	})
}

func (b *browser) handleStats(w http.ResponseWriter, req *http.Request) {
	stats, err := b.store.Stats(req.Context())
	if err != nil {
		b.writeStoreError(w, err)
		return
	}
	b.writeJSON(w, http.StatusOK, stats)
}

func (b *browser) handleDocuments(w http.ResponseWriter, req *http.Request) {
	docs, err := b.store.ListDocuments(req.Context())
	if err != nil {
		b.writeStoreError(w, err)
		return
	}
	b.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(docs),
		"documents": docs,
	})
}

func (b *browser) handleDocument(w http.ResponseWriter, req *http.Request) {
	doc, err := b.store.GetDocument(req.Context(), pathID(req))
	if err != nil {
		b.writeStoreError(w, err)
		return
	}
	b.writeJSON(w, http.StatusOK, doc)
}

func (b *browser) handleEndpoints(w http.ResponseWriter, req *http.Request) {
	page := queryInt(req, "page", 1)
	offset := (page - 1) * endpointPageSize
	endpoints, err := b.store.ListEndpoints(req.Context(), pathID(req), offset, endpointPageSize)
	if err != nil {
		b.writeStoreError(w, err)
		return
	}
	b.writeJSON(w, http.StatusOK, map[string]interface{}{
		"page":      page,
		"per_page":  endpointPageSize,
		"count":     len(endpoints),
		"endpoints": endpoints,
	})
}

func (b *browser) handleSchemas(w http.ResponseWriter, req *http.Request) {
	schemas, err := b.store.ListSchemas(req.Context(), pathID(req))
	if err != nil {
		b.writeStoreError(w, err)
		return
	}
	names := make([]string, 0, len(schemas))
	for _, schema := range schemas {
		names = append(names, schema.Name)
	}
	b.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(names),
		"schemas": names,
	})
}

func (b *browser) handleSchema(w http.ResponseWriter, req *http.Request) {
	schema, err := b.store.GetSchema(req.Context(), pathID(req), mux.Vars(req)["name"])
	if err != nil {
		b.writeStoreError(w, err)
		return
	}
	b.writeJSON(w, http.StatusOK, schema)
}

func (b *browser) handleSecuritySchemes(w http.ResponseWriter, req *http.Request) {
	schemes, err := b.store.ListSecuritySchemes(req.Context(), pathID(req))
	if err != nil {
		b.writeStoreError(w, err)
		return
	}
	b.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(schemes),
		"schemes": schemes,
	})
}

func (b *browser) handleReferenceEdges(w http.ResponseWriter, req *http.Request) {
	edges, err := b.store.ListReferenceEdges(req.Context(), pathID(req))
	if err != nil {
		b.writeStoreError(w, err)
		return
	}
	b.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(edges),
		"edges": edges,
	})
}

func (b *browser) handleCrossReferences(w http.ResponseWriter, req *http.Request) {
	xrefs, err := b.store.ListCrossReferences(req.Context(), pathID(req))
	if err != nil {
		b.writeStoreError(w, err)
		return
	}
	b.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(xrefs),
		"xrefs": xrefs,
	})
}

// pathID reads the {id} route variable; the mux pattern guarantees it
// parses.
func pathID(req *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(req)["id"], 10, 64)
	return id
}

func queryInt(req *http.Request, name string, fallback int) int {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func (b *browser) writeStoreError(w http.ResponseWriter, err error) {
	appErr := apperrors.FromError(err)
	status := http.StatusInternalServerError
	if appErr.Code == apperrors.ErrorCodeResourceNotFound {
		status = http.StatusNotFound
	}
	b.writeError(w, status, appErr.Message)
}

func (b *browser) writeError(w http.ResponseWriter, status int, message string) {
	b.writeJSON(w, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}

func (b *browser) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		b.logger.Error("encode response", "error", err.Error())
	}
}
