package password

import (
	"crypto/rand"
	"math/big"
)

const (
	lowercase = "abcdefghijklmnopqrstuvwxyz"
	uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits    = "0123456789"
	alphabet  = lowercase + uppercase + digits

	temporaryMinLength = 8
	temporaryMaxLength = 10
)

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func randomChar(chars string) (byte, error) {
	i, err := randomIndex(len(chars))
	if err != nil {
		return 0, err
	}
	return chars[i], nil
}

// GenerateTemporary returns a one-time password of 8 to 10 characters holding at
// least one lowercase letter, one uppercase letter and one digit.
func GenerateTemporary() (string, error) {
	extra, err := randomIndex(temporaryMaxLength - temporaryMinLength + 1)
	if err != nil {
		return "", err
	}
	length := temporaryMinLength + extra

	result := make([]byte, 0, length)
	for _, set := range []string{lowercase, uppercase, digits} {
		c, err := randomChar(set)
		if err != nil {
			return "", err
		}
		result = append(result, c)
	}
	for len(result) < length {
		c, err := randomChar(alphabet)
		if err != nil {
			return "", err
		}
		result = append(result, c)
	}

	// Fisher-Yates, so the guaranteed characters are not always up front.
	for i := len(result) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		result[i], result[j] = result[j], result[i]
	}

	return string(result), nil
}
