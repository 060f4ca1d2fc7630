package access

import (
	"errors"
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nickyhof/QueryGate/core"
)

// Claims are the access claims carried by a gateway token.
type Claims struct {
	Level     core.Level
	Databases []string // empty means every database
	Name      string
	Email     string
}

func (c Claims) allows(database string) bool {
	return len(c.Databases) == 0 || slices.Contains(c.Databases, database)
}

type jwtVerifier struct {
	secret []byte
	issuer string
}

// verify validates a JWT and extracts its access claims.
func (v *jwtVerifier) verify(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return Claims{}, fmt.Errorf("invalid token: %w", err)
	}

	if !token.Valid {
		return Claims{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid token claims")
	}

	// Validate issuer if configured
	if v.issuer != "" {
		issuer, _ := claims.GetIssuer()
		if issuer != v.issuer {
			return Claims{}, fmt.Errorf("invalid issuer: expected %s, got %s", v.issuer, issuer)
		}
	}

	levelName, _ := claims["level"].(string)
	level, ok := core.ParseLevel(levelName)
	if !ok {
		return Claims{}, fmt.Errorf("token missing level claim")
	}

	out := Claims{Level: level}
	if dbs, ok := claims["dbs"].([]interface{}); ok {
		for _, db := range dbs {
			if name, ok := db.(string); ok {
				out.Databases = append(out.Databases, name)
			}
		}
	}
	out.Name, _ = claims["name"].(string)
	out.Email, _ = claims["email"].(string)
	if out.Name == "" {
		out.Name, _ = claims.GetSubject()
	}
	return out, nil
}
