package utils

import "golang.org/x/crypto/bcrypt"

func HashTriggerKey(s string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
}

// CompareTriggerKey checks a presented trigger key against the bcrypt hash
// configured for the manual run endpoints.
func CompareTriggerKey(hashed string, presented string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(presented))
}
