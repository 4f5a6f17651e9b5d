package security

import "errors"

var (
	ErrNoCertificates = errors.New("no certificates found in CA file")
	ErrKeyWithoutCert = errors.New("client key given without a certificate")
)
