// Package auth resolves which owner a request acts for. Identity is asserted
// by an upstream gateway; no credentials are checked here.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/yourname/focustracker/internal"
)

var ErrNoOwner = errors.New("missing owner identity")

type Provider interface {
	ResolveOwner(r *http.Request) (string, error)
}

// HeaderProvider reads the owner id from a request header.
type HeaderProvider struct {
	Header string
	logger internal.Logger
}

func NewHeaderProvider(header string, logger internal.Logger) *HeaderProvider {
	if header == "" {
		header = "X-Owner-ID"
	}
	return &HeaderProvider{Header: header, logger: logger}
}

func (p *HeaderProvider) ResolveOwner(r *http.Request) (string, error) {
	owner := strings.TrimSpace(r.Header.Get(p.Header))
	if owner == "" {
		p.logger.Debugf("no %s header on %s %s", p.Header, r.Method, r.URL.Path)
		return "", ErrNoOwner
	}
	return owner, nil
}
