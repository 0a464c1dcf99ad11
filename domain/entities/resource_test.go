package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResource_ResolvedKind(t *testing.T) {
	tests := []struct {
		res  Resource
		want ResourceKind
	}{
		{Resource{URL: "https://tiles.example.com/a.pbf"}, ResourceKindNetwork},
		{Resource{URL: "http://tiles.example.com/a.pbf"}, ResourceKindNetwork},
		{Resource{URL: "h3://tiles.example.com/a.pbf"}, ResourceKindNetwork},
		{Resource{URL: "file:///tmp/a.pbf"}, ResourceKindFile},
		{Resource{URL: "/tmp/a.pbf"}, ResourceKindFile},
		{Resource{URL: "relative/a.pbf"}, ResourceKindFile},
		{Resource{URL: "https://x", Kind: ResourceKindFile}, ResourceKindFile},
	}

	for _, tt := range tests {
		t.Run(tt.res.URL, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.ResolvedKind())
		})
	}
}

func TestResource_Validate(t *testing.T) {
	assert.True(t, Resource{URL: "https://x"}.Validate().Valid)
	assert.NoError(t, Resource{URL: "/a", Method: "HEAD"}.Validate().Err())

	result := Resource{}.Validate()
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Resource.URL", result.Errors[0].Field)
	assert.Contains(t, result.Err().Error(), `failed "required"`)

	result = Resource{URL: "/a", Kind: "ftp", Method: "POST"}.Validate()
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 2)
}

func TestResponse_Constructors(t *testing.T) {
	assert.Equal(t, Response{Status: StatusSuccess, Data: []byte("x")}, Success([]byte("x")))
	assert.Equal(t, Response{Status: StatusError, ErrorKind: ErrorKindServer, ErrorMessage: "boom"}, Failure(ErrorKindServer, "boom"))
	assert.Equal(t, Response{Status: StatusCancelled}, Cancelled())

	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, Status("pending").IsTerminal())
}

func TestErrorDetail_Error(t *testing.T) {
	var nilDetail *ErrorDetail
	assert.Empty(t, nilDetail.Error())

	d := &ErrorDetail{Type: "config", Message: "bad value", Code: "dispatcher.max_concurrent"}
	assert.Equal(t, "config: bad value [dispatcher.max_concurrent]", d.Error())

	internal := &ErrorDetail{Type: "internal", Message: "boom"}
	assert.Equal(t, "boom", internal.Error())
}
