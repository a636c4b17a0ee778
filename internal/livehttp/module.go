package livehttp

import (
	"io"
	"log"
	"net/http"

	"github.com/MJE43/baccarat-roads/internal/livestore"
)

// Module owns the live table database and its HTTP handler.
type Module struct {
	store   *livestore.Store
	handler *Handler
}

// NewModule opens the live database at dbPath.
func NewModule(dbPath, token string, columns int, logger *log.Logger) (*Module, error) {
	store, err := livestore.New(dbPath)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Module{
		store:   store,
		handler: NewHandler(store, token, columns, logger),
	}, nil
}

// Handler returns the routes to mount under /live.
func (m *Module) Handler() http.Handler { return m.handler.Routes() }

// Store exposes the underlying store for CLI use.
func (m *Module) Store() *livestore.Store { return m.store }

// Close closes the DB.
func (m *Module) Close() error { return m.store.Close() }
