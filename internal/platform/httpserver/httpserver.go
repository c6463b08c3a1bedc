package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. The write timeout leaves headroom for batch
// transfers, which make one ledger submission per unit.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       time.Minute,
	}
}
