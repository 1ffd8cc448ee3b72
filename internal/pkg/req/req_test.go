package req

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat/internal/pkg/errs"
)

type samplePayload struct {
	Name string `json:"name"`
	Size *int   `json:"size"`
}

func TestDecodePayload(t *testing.T) {
	var p samplePayload
	require.Nil(t, DecodePayload(json.RawMessage(`{"name":"foo","size":3}`), &p))
	assert.Equal(t, "foo", p.Name)
	require.NotNil(t, p.Size)
	assert.Equal(t, 3, *p.Size)

	var empty samplePayload
	assert.Nil(t, DecodePayload(nil, &empty))
	assert.Nil(t, DecodePayload(json.RawMessage(`null`), &empty))
}

func TestDecodePayload_Errors(t *testing.T) {
	cases := map[string]struct {
		raw   string
		field string
	}{
		"unknown field": {`{"name":"foo","extra":1}`, "extra"},
		"wrong type":    {`{"name":12}`, "name"},
		"not an object": {`[1,2]`, "payload"},
		"malformed":     {`{"name":`, "payload"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var p samplePayload
			err := DecodePayload(json.RawMessage(tc.raw), &p)
			require.NotNil(t, err)
			assert.Equal(t, errs.ErrInvalidParams, err.Code)
			require.Len(t, err.Fields, 1)
			assert.Equal(t, tc.field, err.Fields[0].Field)
		})
	}
}

func TestValidator(t *testing.T) {
	var v Validator
	v.Length("a", 2, 32, "name")
	v.UUID("nope", "channelId")
	v.Range(0, 1, 100, "size")
	v.OneOf("id:up", "orderBy", "id:asc", "id:desc")

	err := v.Err()
	require.NotNil(t, err)
	assert.Len(t, err.Fields, 4)
	assert.Equal(t, "name", err.Fields[0].Field)

	var ok Validator
	ok.Length("foo", 2, 32, "name")
	ok.UUID(uuid.NewString(), "channelId")
	ok.Range(10, 1, 100, "size")
	ok.OneOf("id:desc", "orderBy", "id:asc", "id:desc")
	assert.Nil(t, ok.Err())
}
