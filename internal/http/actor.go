package httpapi

import (
	"net/http"
	"strings"

	"saffy-workflow/internal/domain"
)

// 认证网关写入的操作人头
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
	HeaderUserRole = "X-User-Role"
)

// actorFromReq 缺少 id 或 role 时写 401 并返回 false
func actorFromReq(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	role := strings.TrimSpace(r.Header.Get(HeaderUserRole))
	if id == "" || role == "" {
		writeJSON(w, http.StatusUnauthorized, Fail("Unauthorized", "X-User-Id and X-User-Role headers are required"))
		return domain.Actor{}, false
	}
	return domain.Actor{
		ID:   id,
		Name: strings.TrimSpace(r.Header.Get(HeaderUserName)),
		Role: domain.Role(role),
	}, true
}
