package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeBodyRoundTripsBinaryData(t *testing.T) {
	original := []byte{0x00, 0xff, 0x10, 'h', 'i', 0x00}
	encoded := EncodeBody(original)
	decoded, err := DecodeBody(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeBodyRejectsInvalidBase64(t *testing.T) {
	_, err := DecodeBody("not-base64!!!")
	assert.Error(t, err)
}

func TestRequestEnvelopeRoundTrip(t *testing.T) {
	env := RequestEnvelope{
		Method:  "POST",
		Path:    "/v1/infer",
		Query:   "a=1",
		Headers: map[string]string{"x-urgent": "true"},
		Body:    EncodeBody([]byte(`{"x":1}`)),
		Forced:  true,
	}
	data, err := MarshalRequest(env)
	require.NoError(t, err)

	decoded, err := UnmarshalRequest(data)
	require.NoError(t, err)
	assert.Equal(t, env, decoded)
}

func TestResponseEnvelopeRoundTrip(t *testing.T) {
	env := ResponseEnvelope{
		Status:  200,
		Headers: map[string]string{"content-type": "application/json"},
		Body:    EncodeBody([]byte("payload")),
	}
	data, err := MarshalResponse(env)
	require.NoError(t, err)

	decoded, err := UnmarshalResponse(data)
	require.NoError(t, err)
	assert.Equal(t, env, decoded)
}

func TestUnmarshalRequestRejectsInvalidJSON(t *testing.T) {
	_, err := UnmarshalRequest([]byte("{not json"))
	assert.Error(t, err)
}
