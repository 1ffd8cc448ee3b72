/*
Package req provides helpers for decoding and validating inbound operation payloads.

Payloads are decoded strictly: unknown fields and trailing content are rejected, and decoding
failures are reported as field-level validation errors rather than generic failures.
*/
package req

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"groupchat/internal/pkg/errs"
)

// DecodePayload binds raw into dst. A missing or null payload decodes as an empty object.
func DecodePayload(raw json.RawMessage, dst any) *errs.CustomError {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.Invalid(fieldErrorFrom(err))
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

func fieldErrorFrom(err error) errs.FieldError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "payload"
		}
		return errs.FieldError{Field: field, Message: fmt.Sprintf("must be of type %s", jsonKind(typeErr.Type.Kind().String()))}
	}

	const unknownPrefix = "json: unknown field "
	if msg := err.Error(); strings.HasPrefix(msg, unknownPrefix) {
		return errs.FieldError{Field: strings.Trim(strings.TrimPrefix(msg, unknownPrefix), `"`), Message: "is not allowed"}
	}

	return errs.FieldError{Field: "payload", Message: "must be a JSON object"}
}

func jsonKind(goKind string) string {
	switch goKind {
	case "string":
		return "string"
	case "bool":
		return "boolean"
	case "slice", "array":
		return "array"
	case "struct", "map", "ptr":
		return "object"
	}
	return "number"
}
