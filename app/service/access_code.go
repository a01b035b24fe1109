package service

import "crypto/rand"

// Uppercase letters and digits without the look-alikes 0/O and 1/I. The
// alphabet has 32 symbols so byte%32 is uniform.
const accessCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const defaultAccessCodeLength = 10

func GenerateAccessCode(length int) (string, error) {
	if length <= 0 {
		length = defaultAccessCodeLength
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	out := make([]byte, length)
	for i, b := range buf {
		out[i] = accessCodeAlphabet[int(b)%len(accessCodeAlphabet)]
	}
	return string(out), nil
}
