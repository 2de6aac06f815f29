package operator

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/scanflow/scanflow-backend/pkg/logger"
)

// BadgeClaims are the claims carried by an operator badge token
type BadgeClaims struct {
	Name  string `json:"name"`
	Badge string `json:"badge"`
	Line  string `json:"line,omitempty"`
	jwt.RegisteredClaims
}

// Middleware extracts the operator identity from the Authorization
// header. Requests without a valid badge token proceed without an
// operator in context; endpoints that mutate state enforce presence
// themselves.
func Middleware(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			tokenStr := strings.TrimPrefix(auth, "Bearer ")
			claims := &BadgeClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				log.Warn().Err(err).Msg("invalid badge token")
				next.ServeHTTP(w, r)
				return
			}

			op := &Operator{
				ID:    claims.Subject,
				Name:  claims.Name,
				Badge: claims.Badge,
				Line:  claims.Line,
			}

			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
		})
	}
}
