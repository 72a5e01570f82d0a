// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/hitoshi/packgate/internal/model"
)

// apiKeyHeader はAPIキーを渡すリクエストヘッダー名。
const apiKeyHeader = "X-API-Key"

// Role はAPIキーの認証ロール。
type Role string

const (
	// RoleService は一般APIにアクセスできるサービスロール。
	RoleService Role = "service"
	// RoleAdmin は管理者APIを含む全APIにアクセスできるロール。
	RoleAdmin Role = "admin"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// roleContextKey はリクエストコンテキストに認証ロールを格納するためのキー。
var roleContextKey = contextKey("role")

// NewAPIKeyMiddleware はX-API-Keyヘッダーを検証するミドルウェアを返す。
// サービスキーまたは管理者キーに一致した場合、対応するロールをコンテキストに注入する。
// 不一致のリクエストには401 Unauthorizedを返す。
func NewAPIKeyMiddleware(serviceKey, adminKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(apiKeyHeader)
			if key == "" {
				writeUnauthorized(w)
				return
			}

			var role Role
			switch {
			case subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) == 1:
				role = RoleAdmin
			case subtle.ConstantTimeCompare([]byte(key), []byte(serviceKey)) == 1:
				role = RoleService
			default:
				writeUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), roleContextKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRequireAdminMiddleware は管理者ロールのみを通過させるミドルウェアを返す。
// APIキーミドルウェアの後に配置する必要がある。
func NewRequireAdminMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, err := RoleFromContext(r.Context())
			if err != nil || role != RoleAdmin {
				WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
					Code:     "FORBIDDEN",
					Message:  "この操作には管理者権限が必要です。",
					Category: "auth",
					Action:   "管理者用のAPIキーを使用してください。",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RoleFromContext はリクエストコンテキストから認証ロールを取得する。
// APIキーミドルウェアを通過したリクエストでのみ有効。
func RoleFromContext(ctx context.Context) (Role, error) {
	role, ok := ctx.Value(roleContextKey).(Role)
	if !ok || role == "" {
		return "", fmt.Errorf("role not found in context")
	}
	return role, nil
}

// ContextWithRole はコンテキストに認証ロールを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleContextKey, role)
}

// writeUnauthorized は401レスポンスを統一フォーマットで書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "APIキーが無効です。",
		Category: "auth",
		Action:   "X-API-Keyヘッダーに有効なAPIキーを指定してください。",
	})
}
