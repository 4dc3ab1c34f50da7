package jwt

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims incluye los claims estándar JWT más el actor y el propietario (tenant) del inventario.
// Los tokens los emite el servicio de identidad; aquí solo se verifican.
type Claims struct {
	jwt.RegisteredClaims
	UserID  string `json:"user_id"`
	OwnerID string `json:"owner_id"`
}

// Parse valida el token y devuelve userID y ownerID.
// Retorna error si el token es inválido, expirado, tiene firma incorrecta o le falta el propietario.
func Parse(secret, tokenString string) (userID, ownerID string, err error) {
	if secret == "" {
		return "", "", fmt.Errorf("jwt: secret vacío")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("método de firma inesperado: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", "", err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("claims inválidos")
	}
	if claims.OwnerID == "" {
		return "", "", fmt.Errorf("claims sin owner_id")
	}
	return claims.UserID, claims.OwnerID, nil
}
