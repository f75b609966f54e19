// Package validation provides input validation helpers and middleware for the CryptoSleuth API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxChainLength is the maximum length of a chain name
const MaxChainLength = 64

// Address kinds reported by AddressKind.
const (
	KindEVM     = "evm"
	KindBitcoin = "bitcoin"
	KindOther   = "other"
)

var (
	// btcAddressRegex loosely matches legacy, P2SH and bech32 bitcoin addresses
	btcAddressRegex = regexp.MustCompile(`^(bc1[a-z0-9]{8,87}|[13][a-km-zA-HJ-NP-Z1-9]{25,34})$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// AddressKind classifies an address by its textual format. It is descriptive
// only; scoring never depends on it.
func AddressKind(addr string) string {
	switch {
	case strings.HasPrefix(addr, "0x") && common.IsHexAddress(addr):
		return KindEVM
	case btcAddressRegex.MatchString(addr):
		return KindBitcoin
	default:
		return KindOther
	}
}

// ChecksumAddress returns the EIP-55 form of an EVM address, or "" if addr
// is not one.
func ChecksumAddress(addr string) string {
	if AddressKind(addr) != KindEVM {
		return ""
	}
	return common.HexToAddress(addr).Hex()
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// AddressParamMiddleware rejects blank :address URL params.
func AddressParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Params.Get("address"); ok && strings.TrimSpace(c.Param("address")) == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "Address is required",
			})
			return
		}
		c.Next()
	}
}
