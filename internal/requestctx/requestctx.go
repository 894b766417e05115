// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package requestctx derives the privacy-preserving request fingerprint
// used by attribution and heuristic linking. Raw IP addresses and user
// agents never leave this package: both are reduced at the HTTP boundary
// to salted SHA-256 hashes, truncated to 32 hex characters.
//
// The salt comes from configuration. Rotating it unlinks every previously
// derived fingerprint, which is the intended escape hatch if a tenant
// needs historical fingerprints invalidated.
package requestctx

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/funnelgrid/funnelgrid/internal/models"
)

// hashHexLen is the truncated length of the derived hashes. 128 bits is
// plenty for equality matching and keeps the columns compact.
const hashHexLen = 32

// Deriver turns inbound requests into hashed fingerprints.
type Deriver struct {
	salt string
}

// NewDeriver creates a deriver with the configured hash salt.
func NewDeriver(salt string) *Deriver {
	return &Deriver{salt: salt}
}

// Derive hashes an already-extracted client IP and user agent.
func (d *Deriver) Derive(clientIP, userAgent string) models.RequestContext {
	return models.RequestContext{
		IPHash: d.hash("ip", clientIP),
		UAHash: d.hash("ua", userAgent),
	}
}

// FromRequest extracts the client IP and user agent from an HTTP request
// and derives the fingerprint.
func (d *Deriver) FromRequest(r *http.Request) models.RequestContext {
	return d.Derive(ClientIP(r), r.UserAgent())
}

// hash computes the salted, domain-separated, truncated hash. The kind
// prefix keeps an IP and a UA with equal bytes from colliding.
func (d *Deriver) hash(kind, value string) string {
	sum := sha256.Sum256([]byte(kind + "\x00" + d.salt + "\x00" + value))
	return hex.EncodeToString(sum[:])[:hashHexLen]
}

// ClientIP resolves the client address: first valid X-Forwarded-For hop,
// then X-Real-IP, then the connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
