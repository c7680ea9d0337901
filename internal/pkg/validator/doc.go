// Package validator provides a small validation abstraction for domain
// structs.
//
// Business code should depend on the Validator interface so validation can be
// shared and tested consistently. The concrete implementation wraps
// go-playground/validator v10.
package validator
