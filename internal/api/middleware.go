package api

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// RoleHeader carries the caller's role, resolved upstream by the auth layer
const RoleHeader = "X-User-Role"

// Roles allowed to drive the pipeline. Regular members are read-only.
var elevatedRoles = map[string]bool{
	"moderator": true,
	"admin":     true,
}

// requireElevatedRole rejects mutating calls before any pipeline work begins
func requireElevatedRole(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := r.Header.Get(RoleHeader)
		if !elevatedRoles[role] {
			logrus.Warnf("Rejected %s %s: role %q is not permitted", r.Method, r.URL.Path, role)
			writeError(w, http.StatusForbidden, "elevated role required")
			return
		}
		next(w, r)
	}
}
